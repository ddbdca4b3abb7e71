// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package game implements the round lifecycle, the vote pipeline and the
// prize flow on top of the models, ledger, queue and phrase packages.
// Service methods either complete their state change in a single database
// transaction or leave no trace of it, and report rule violations as
// *Error values holding the wire code the client sees.
package game

import (
	"time"

	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/locks"
	"github.com/quipflip/quipflip/phrase"
	"github.com/quipflip/quipflip/queue"
)

// Config holds the economy and timing knobs.  Durations are in seconds
// except SweepInterval, which drives the background ticker.
type Config struct {
	StartingBalance  int64
	DailyBonus       int64
	PromptCost       int64
	CopyCost         int64
	CopyCostDiscount int64
	VoteCost         int64
	VotePayout       int64
	PrizePool        int64
	DiscountDepth    int64
	MaxOutstanding   int64
	MaxVotes         int64
	PromptWindow     int64
	CopyWindow       int64
	VoteWindow       int64
	GraceBand        int64
	ThirdVoteWindow  int64
	FifthVoteWindow  int64
	AbandonCooldown  int64
	SweepInterval    time.Duration
}

// Service owns all game state changes.  Methods are safe for concurrent
// use; cross request ordering is enforced through the locker and row
// locks, never through in process state.
type Service struct {
	cfg       Config
	dbMap     *gorp.DbMap
	locker    locks.Locker
	queue     *queue.Store
	validator *phrase.Validator
}

// NewService returns a game service over the given stores.
func NewService(cfg Config, dbMap *gorp.DbMap, locker locks.Locker, queueStore *queue.Store, validator *phrase.Validator) *Service {
	return &Service{
		cfg:       cfg,
		dbMap:     dbMap,
		locker:    locker,
		queue:     queueStore,
		validator: validator,
	}
}

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Service) withTx(fn func(tx *gorp.Transaction) error) error {
	tx, err := s.dbMap.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Errorf("Transaction rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// utcDate formats a unix time as the UTC calendar date used by the daily
// bonus and the abandonment cooldown bookkeeping.
func utcDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02")
}
