// Copyright (c) 2019-2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"
	"time"
)

// validGameConfig returns a config holding the default game settings.
func validGameConfig() *config {
	return &config{
		StartingBalance:     defaultStartingBalance,
		DailyBonus:          defaultDailyBonus,
		PromptCost:          defaultPromptCost,
		CopyCost:            defaultCopyCost,
		CopyCostDiscount:    defaultCopyCostDiscount,
		VoteCost:            defaultVoteCost,
		VotePayout:          defaultVotePayout,
		PrizePool:           defaultPrizePool,
		DiscountDepth:       defaultDiscountDepth,
		MaxOutstanding:      defaultMaxOutstanding,
		MaxVotes:            defaultMaxVotes,
		PromptWindow:        defaultPromptWindow,
		CopyWindow:          defaultCopyWindow,
		VoteWindow:          defaultVoteWindow,
		GraceBand:           defaultGraceBand,
		ThirdVoteWindow:     defaultThirdVoteWindow,
		FifthVoteWindow:     defaultFifthVoteWindow,
		AbandonCooldown:     defaultAbandonCooldown,
		SweepInterval:       defaultSweepInterval,
		SimilarityThreshold: defaultSimilarityThreshold,
		WordSimilarity:      defaultWordSimilarity,
		RateLimit:           defaultRateLimit,
		VoteRateLimit:       defaultVoteRateLimit,
	}
}

//mutation applied to a valid config and the expected error status
var gameSettingTests = []struct {
	name    string
	mutate  func(*config)
	isError bool
}{
	{"defaults", func(*config) {}, false},
	{"zero prompt cost", func(c *config) { c.PromptCost = 0 }, true},
	{"negative copy cost", func(c *config) { c.CopyCost = -100 }, true},
	{"discount above copy cost", func(c *config) { c.CopyCostDiscount = c.CopyCost + 10 }, true},
	{"discount equal to copy cost", func(c *config) { c.CopyCostDiscount = c.CopyCost }, false},
	{"free votes", func(c *config) { c.VoteCost = 0 }, false},
	{"negative vote cost", func(c *config) { c.VoteCost = -1 }, true},
	{"negative vote payout", func(c *config) { c.VotePayout = -5 }, true},
	{"zero prize pool", func(c *config) { c.PrizePool = 0 }, true},
	{"zero discount depth", func(c *config) { c.DiscountDepth = 0 }, true},
	{"zero outstanding limit", func(c *config) { c.MaxOutstanding = 0 }, true},
	{"max votes below closing count", func(c *config) { c.MaxVotes = 4 }, true},
	{"max votes at closing count", func(c *config) { c.MaxVotes = 5 }, false},
	{"zero vote window", func(c *config) { c.VoteWindow = 0 }, true},
	{"negative prompt window", func(c *config) { c.PromptWindow = -time.Second }, true},
	{"zero grace band", func(c *config) { c.GraceBand = 0 }, false},
	{"negative grace band", func(c *config) { c.GraceBand = -time.Second }, true},
	{"zero third vote window", func(c *config) { c.ThirdVoteWindow = 0 }, true},
	{"zero abandon cooldown", func(c *config) { c.AbandonCooldown = 0 }, false},
	{"zero sweep interval", func(c *config) { c.SweepInterval = 0 }, true},
	{"similarity above one", func(c *config) { c.SimilarityThreshold = 1.5 }, true},
	{"similarity at one", func(c *config) { c.SimilarityThreshold = 1 }, false},
	{"zero word similarity", func(c *config) { c.WordSimilarity = 0 }, true},
	{"zero rate limit", func(c *config) { c.RateLimit = 0 }, true},
}

func TestValidateGameSettings(t *testing.T) {
	for _, test := range gameSettingTests {
		cfg := validGameConfig()
		test.mutate(cfg)
		err := cfg.validateGameSettings()
		if (err != nil) != test.isError {
			t.Errorf("%s: got error %v, want error=%v", test.name, err,
				test.isError)
		}
	}
}

//address in, default port, normalized address out
var normalizeAddressTests = []struct {
	addr string
	port string
	want string
}{
	{"127.0.0.1", "8000", "127.0.0.1:8000"},
	{"127.0.0.1:8001", "8000", "127.0.0.1:8001"},
	{"", "8000", ":8000"},
	{"::1", "8000", "[::1]:8000"},
	{"[::1]:8001", "8000", "[::1]:8001"},
}

func TestNormalizeAddress(t *testing.T) {
	for _, test := range normalizeAddressTests {
		got := normalizeAddress(test.addr, test.port)
		if got != test.want {
			t.Errorf("normalizeAddress(%q, %q) = %q, want %q",
				test.addr, test.port, got, test.want)
		}
	}
}
