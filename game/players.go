// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/ledger"
	"github.com/quipflip/quipflip/models"
)

// Username pools for generated accounts.  Display names are an adjective
// noun pair, optionally followed by a numeric suffix when the first picks
// collide.
var usernameAdjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "cosmic", "daring",
	"dapper", "eager", "fancy", "fuzzy", "gentle", "glad", "golden",
	"humble", "jolly", "keen", "lively", "lucky", "mellow", "merry",
	"nimble", "plucky", "proud", "quick", "quiet", "rapid", "shiny",
	"sly", "snappy", "sunny", "swift", "tidy", "witty", "zesty",
}

var usernameNouns = []string{
	"badger", "beaver", "bison", "condor", "coyote", "crane", "dingo",
	"falcon", "ferret", "gecko", "heron", "ibex", "jackal", "koala",
	"lemur", "lynx", "magpie", "marmot", "mongoose", "moose", "narwhal",
	"ocelot", "otter", "owl", "panda", "pelican", "puffin", "quokka",
	"raven", "seal", "stoat", "tapir", "toucan", "walrus", "wombat",
}

// createAttempts bounds the insert retries when generated names collide
// with concurrent registrations.
const createAttempts = 6

// randomUsername picks a display name.  attempt widens the space with a
// random three digit suffix once the first pick has collided.
func randomUsername(attempt int) string {
	name := usernameAdjectives[rand.Intn(len(usernameAdjectives))] + " " +
		usernameNouns[rand.Intn(len(usernameNouns))]
	if attempt > 0 {
		name = fmt.Sprintf("%s %d", name, 100+rand.Intn(900))
	}
	return name
}

// validUsername reports whether a requested display name is acceptable:
// letters, digits and single spaces, at most 30 characters.
func validUsername(name string) bool {
	if len(name) == 0 || len(name) > 30 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == ' ':
		default:
			return false
		}
	}
	return true
}

// isDuplicateEntry reports whether err is the MySQL unique index
// violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// CreatePlayer registers an account and returns the one time view of its
// api key.  With an empty username a unique display name is generated;
// a requested username must be free.  Email and password are optional
// and enable the credential login flow.
func (s *Service) CreatePlayer(ctx context.Context, username string, email string, password string) (*gameapi.CreatePlayerResponse, error) {
	now := time.Now().Unix()

	player := &models.Player{
		ApiKey:        uuid.NewString(),
		Email:         email,
		Balance:       s.cfg.StartingBalance,
		LastLoginDate: utcDate(now),
		CreatedAt:     now,
	}
	if password != "" {
		if err := player.HashPassword(password); err != nil {
			return nil, err
		}
	}

	if username != "" {
		if !validUsername(username) {
			return nil, NewError(gameapi.CodeInvalidCredentials,
				"username may only contain letters, digits and spaces, at most 30 characters")
		}
		taken, err := models.UsernameExists(s.dbMap, username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, NewError(gameapi.CodeInvalidCredentials,
				"username %q is already taken", username)
		}
		player.Username = username
		player.UsernameCanonical = models.CanonicalUsername(username)
		if err := s.dbMap.Insert(player); err != nil {
			if isDuplicateEntry(err) {
				return nil, NewError(gameapi.CodeInvalidCredentials,
					"username %q is already taken", username)
			}
			return nil, err
		}
	} else {
		var inserted bool
		for attempt := 0; attempt < createAttempts; attempt++ {
			name := randomUsername(attempt)
			player.Username = name
			player.UsernameCanonical = models.CanonicalUsername(name)
			err := s.dbMap.Insert(player)
			if err == nil {
				inserted = true
				break
			}
			if !isDuplicateEntry(err) {
				return nil, err
			}
		}
		if !inserted {
			return nil, fmt.Errorf("could not generate a free username "+
				"after %d attempts", createAttempts)
		}
	}

	log.Infof("Created player %d (%s)", player.Id, player.Username)
	return &gameapi.CreatePlayerResponse{
		PlayerId: player.Id,
		Username: player.Username,
		ApiKey:   player.ApiKey,
		Balance:  player.Balance,
		Message:  "save your api key, it is only shown on creation and rotation",
	}, nil
}

// LegacyLogin recovers the api key for a username.  No password is
// involved; this is the documented recovery path for key only accounts.
func (s *Service) LegacyLogin(ctx context.Context, username string) (*gameapi.LegacyLoginResponse, error) {
	player, err := models.GetPlayerByUsername(s.dbMap, username)
	if err == sql.ErrNoRows {
		return nil, NewError(gameapi.CodeUsernameNotFound,
			"no player with username %q", username)
	}
	if err != nil {
		return nil, err
	}
	return &gameapi.LegacyLoginResponse{
		PlayerId: player.Id,
		Username: player.Username,
		ApiKey:   player.ApiKey,
	}, nil
}

// RotateKey replaces the player's api key.  The previous key stops
// working immediately; refresh sessions are untouched.
func (s *Service) RotateKey(ctx context.Context, playerID int64) (*gameapi.RotateKeyResponse, error) {
	key := uuid.NewString()
	if err := models.SetAPIKey(s.dbMap, playerID, key); err != nil {
		return nil, err
	}
	log.Infof("Rotated api key for player %d", playerID)
	return &gameapi.RotateKeyResponse{
		ApiKey:  key,
		Message: "previous key is no longer valid",
	}, nil
}

// bonusAvailable reports whether the daily bonus can be claimed at now.
// Never on the creation date, and at most once per UTC day.
func bonusAvailable(player *models.Player, now int64) bool {
	today := utcDate(now)
	return today > player.LastLoginDate && today > utcDate(player.CreatedAt)
}

// Balance returns the player's balance view.
func (s *Service) Balance(ctx context.Context, playerID int64) (*gameapi.BalanceResponse, error) {
	player, err := models.GetPlayerByID(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	outstanding, err := models.CountOutstandingPrompts(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	return &gameapi.BalanceResponse{
		PlayerId:            player.Id,
		Username:            player.Username,
		Balance:             player.Balance,
		DailyBonusAvailable: bonusAvailable(player, time.Now().Unix()),
		DailyBonusAmount:    s.cfg.DailyBonus,
		OutstandingPrompts:  outstanding,
	}, nil
}

// ClaimDailyBonus credits the daily bonus once per UTC day.  The unique
// DailyBonus row and the ledger credit commit together.
func (s *Service) ClaimDailyBonus(ctx context.Context, playerID int64) (*gameapi.DailyBonusResponse, error) {
	now := time.Now().Unix()
	today := utcDate(now)

	var resp *gameapi.DailyBonusResponse
	err := s.withTx(func(tx *gorp.Transaction) error {
		player, err := models.GetPlayerByIDForUpdate(tx, playerID)
		if err != nil {
			return err
		}
		if !bonusAvailable(player, now) {
			return NewError(gameapi.CodeAlreadyClaimedToday,
				"daily bonus not available until the next UTC day")
		}

		bonus := &models.DailyBonus{
			PlayerId:  playerID,
			Date:      today,
			Amount:    s.cfg.DailyBonus,
			CreatedAt: now,
		}
		if err := tx.Insert(bonus); err != nil {
			if isDuplicateEntry(err) {
				return NewError(gameapi.CodeAlreadyClaimedToday,
					"daily bonus not available until the next UTC day")
			}
			return err
		}

		balance, err := ledger.Credit(tx, playerID, s.cfg.DailyBonus,
			models.TxKindDailyBonus, models.BonusRef(today), now)
		if err != nil {
			return err
		}
		if err := models.SetLastLoginDate(tx, playerID, today); err != nil {
			return err
		}

		resp = &gameapi.DailyBonusResponse{
			Success:    true,
			Amount:     s.cfg.DailyBonus,
			NewBalance: balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Player %d claimed daily bonus for %s", playerID, today)
	return resp, nil
}
