// Copyright (c) 2019-2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"crypto/elliptic"
	"io/ioutil"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/certgen"
	"github.com/go-gorp/gorp"
	"github.com/go-redis/redis/v8"
	"github.com/zenazn/goji/graceful"
	"github.com/zenazn/goji/web"
	gojimw "github.com/zenazn/goji/web/middleware"

	"github.com/quipflip/quipflip/controllers"
	"github.com/quipflip/quipflip/game"
	"github.com/quipflip/quipflip/locks"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/phrase"
	"github.com/quipflip/quipflip/queue"
	"github.com/quipflip/quipflip/ratelimit"
	"github.com/quipflip/quipflip/signal"
	"github.com/quipflip/quipflip/system"
)

// Redis lock tuning.  The TTL bounds how long a crashed holder can wedge a
// name, the wait bounds how long a request blocks before giving up with a
// dependency error.
const (
	redisLockTTL  = 30 * time.Second
	redisLockWait = 5 * time.Second
)

var cfg *config

func main() {
	if err := quipflipMain(); err != nil {
		os.Exit(1)
	}
}

func quipflipMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	loadedCfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loadedCfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()
	log.Infof("Version: %s", version())

	// Cancellation of this context stops the sweeper and the refresh token
	// cleaner.
	go signal.ShutdownListener()
	ctx := signal.WithShutdownCancel(context.Background())
	var wg sync.WaitGroup

	application := &system.Application{}
	err = application.Init(ctx, &wg, cfg.APISecret, cfg.CookieSecret,
		cfg.CookieSecure, cfg.DBURL)
	if err != nil {
		log.Errorf("Failed to initialize application: %v", err)
		return err
	}
	defer application.Close()

	dict, err := phrase.LoadDictionary(cfg.Dictionary)
	if err != nil {
		log.Errorf("Failed to load dictionary %s: %v", cfg.Dictionary, err)
		return err
	}
	log.Infof("Dictionary %s loaded with %d words", cfg.Dictionary, dict.Len())
	system.ReloadDictionarySig(dict)

	if cfg.PromptFile != "" {
		n, err := seedPrompts(application.DbMap, cfg.PromptFile)
		if err != nil {
			log.Errorf("Failed to seed prompts from %s: %v", cfg.PromptFile, err)
			return err
		}
		if n > 0 {
			log.Infof("Seeded %d prompts from %s", n, cfg.PromptFile)
		}
	}
	promptCount, err := models.CountPrompts(application.DbMap)
	if err != nil {
		log.Errorf("Failed to count prompts: %v", err)
		return err
	}
	if promptCount == 0 {
		log.Warnf("The prompt library is empty; prompt rounds are " +
			"unavailable until prompts are seeded")
	} else {
		log.Infof("Prompt library holds %d enabled prompts", promptCount)
	}

	// Redis is optional.  Without it locks and rate limits are in-process,
	// which is only correct for single instance deployments.
	var redisClient *redis.Client
	var locker locks.Locker
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Errorf("Invalid redisurl: %v", err)
			return err
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Errorf("Redis connection failed: %v", err)
			return err
		}
		defer redisClient.Close()
		locker = locks.NewRedisLocker(redisClient, redisLockTTL, redisLockWait)
		limiter = ratelimit.NewRedisLimiter(redisClient)
		log.Infof("Redis connected; locks and rate limits are shared")
	} else {
		locker = locks.NewLocalLocker()
		limiter = ratelimit.NewLocalLimiter()
		log.Infof("No redisurl set; locks and rate limits are in-process")
	}

	queueStore := queue.NewStore(application.DbMap, redisClient,
		int64(cfg.GraceBand/time.Second), int64(cfg.AbandonCooldown/time.Second))
	validator := phrase.NewValidator(dict, cfg.SimilarityThreshold,
		cfg.WordSimilarity)

	gameService := game.NewService(game.Config{
		StartingBalance:  int64(cfg.StartingBalance),
		DailyBonus:       int64(cfg.DailyBonus),
		PromptCost:       int64(cfg.PromptCost),
		CopyCost:         int64(cfg.CopyCost),
		CopyCostDiscount: int64(cfg.CopyCostDiscount),
		VoteCost:         int64(cfg.VoteCost),
		VotePayout:       int64(cfg.VotePayout),
		PrizePool:        int64(cfg.PrizePool),
		DiscountDepth:    int64(cfg.DiscountDepth),
		MaxOutstanding:   int64(cfg.MaxOutstanding),
		MaxVotes:         int64(cfg.MaxVotes),
		PromptWindow:     int64(cfg.PromptWindow / time.Second),
		CopyWindow:       int64(cfg.CopyWindow / time.Second),
		VoteWindow:       int64(cfg.VoteWindow / time.Second),
		GraceBand:        int64(cfg.GraceBand / time.Second),
		ThirdVoteWindow:  int64(cfg.ThirdVoteWindow / time.Second),
		FifthVoteWindow:  int64(cfg.FifthVoteWindow / time.Second),
		AbandonCooldown:  int64(cfg.AbandonCooldown / time.Second),
		SweepInterval:    cfg.SweepInterval,
	}, application.DbMap, locker, queueStore, validator)

	wg.Add(1)
	go gameService.RunSweeper(ctx, &wg)

	controller := controllers.NewMainController(cfg.APISecret, gameService,
		application.Store, redisClient, dict, cfg.RealIPHeader, version())

	app := web.New()

	// Apply middleware
	app.Use(gojimw.RequestID)
	app.Use(system.Logger(cfg.RealIPHeader))
	app.Use(gojimw.Recoverer)
	app.Use(gojimw.AutomaticOptions)
	app.Use(application.ApplyDbMap)
	app.Use(application.ApplyAPI)
	app.Use(application.ApplyRateLimit(limiter, int64(cfg.RateLimit),
		int64(cfg.VoteRateLimit), cfg.RealIPHeader))

	// Registration and token endpoints.  Login, refresh, and logout write
	// the refresh cookie themselves.
	app.Post("/player", application.APIHandler(controller.Register))
	app.Post("/auth/login", controller.Login)
	app.Post("/auth/refresh", controller.Refresh)
	app.Post("/auth/logout", controller.Logout)
	app.Post("/player/login", application.APIHandler(controller.LegacyLogin))
	app.Post("/player/rotate-key", application.APIHandler(controller.RotateKey))

	// Player state
	app.Get("/player/balance", application.APIHandler(controller.Balance))
	app.Post("/player/claim-daily-bonus", application.APIHandler(controller.ClaimDailyBonus))
	app.Get("/player/current-round", application.APIHandler(controller.CurrentRound))
	app.Get("/player/pending-results", application.APIHandler(controller.PendingResults))
	app.Get("/player/unclaimed-results", application.APIHandler(controller.UnclaimedResults))
	app.Get("/player/phrasesets/summary", application.APIHandler(controller.PhrasesetSummary))
	app.Get("/player/phrasesets", application.APIHandler(controller.Phrasesets))

	// Round lifecycle.  The static paths are registered before the :id
	// routes so they are never shadowed.
	app.Get("/rounds/available", application.APIHandler(controller.RoundsAvailable))
	app.Post("/rounds/prompt", application.APIHandler(controller.StartPrompt))
	app.Post("/rounds/copy", application.APIHandler(controller.StartCopy))
	app.Post("/rounds/vote", application.APIHandler(controller.StartVote))
	app.Post("/rounds/:id/submit", application.APIHandler(controller.SubmitPhrase))
	app.Get("/rounds/:id", application.APIHandler(controller.Round))

	// Phrasesets
	app.Post("/phrasesets/:id/vote", application.APIHandler(controller.Vote))
	app.Get("/phrasesets/:id/details", application.APIHandler(controller.PhrasesetDetails))
	app.Get("/phrasesets/:id/results", application.APIHandler(controller.PhrasesetResults))
	app.Post("/phrasesets/:id/claim", application.APIHandler(controller.ClaimPrize))

	app.Get("/health", application.APIHandler(controller.Health))

	app.NotFound(system.GojiWebHandlerFunc(system.APIInvalidHandler))

	graceful.HandleSignals()
	graceful.PreHook(func() { log.Info("Received signal, gracefully stopping") })
	graceful.PostHook(func() { log.Info("Listener stopped") })

	if cfg.NoTLS {
		log.Infof("Listening on http://%s", cfg.Listen)
		err = graceful.ListenAndServe(cfg.Listen, app)
	} else {
		if !fileExists(cfg.APICert) && !fileExists(cfg.APIKey) {
			if err := genCertPair(cfg.APICert, cfg.APIKey); err != nil {
				log.Errorf("Failed to generate TLS certificates: %v", err)
				return err
			}
		}
		log.Infof("Listening on https://%s", cfg.Listen)
		err = graceful.ListenAndServeTLS(cfg.Listen, cfg.APICert, cfg.APIKey, app)
	}
	if err != nil {
		log.Errorf("Listener error: %v", err)
		return err
	}
	graceful.Wait()
	wg.Wait()
	return nil
}

// seedPrompts inserts prompts from a newline delimited file.  Lines already
// in the library are skipped, so re-running with the same file is harmless.
func seedPrompts(dbMap *gorp.DbMap, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var added int64
	now := time.Now().Unix()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		exists, err := models.PromptTextExists(dbMap, text)
		if err != nil {
			return added, err
		}
		if exists {
			continue
		}
		prompt := &models.Prompt{Text: text, Enabled: 1, CreatedAt: now}
		if err := dbMap.Insert(prompt); err != nil {
			return added, err
		}
		added++
	}
	return added, scanner.Err()
}

// genCertPair generates a key/cert pair to the paths provided.
func genCertPair(certFile, keyFile string) error {
	log.Infof("Generating TLS certificates...")

	org := "quipflip autogenerated cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := certgen.NewTLSCertPair(elliptic.P521(), org,
		validUntil, nil)
	if err != nil {
		return err
	}

	if err = ioutil.WriteFile(certFile, cert, 0644); err != nil {
		return err
	}
	if err = ioutil.WriteFile(keyFile, key, 0600); err != nil {
		os.Remove(certFile)
		return err
	}

	log.Infof("Done generating TLS certificates")
	return nil
}
