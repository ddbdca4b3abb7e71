// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package queue projects the two wait lists of the game out of the
// database: prompts awaiting copies and phrasesets awaiting votes.
// Neither is a separate table.  The copy queue is the set of submitted
// prompt rounds with fewer than two successful copies and no phraseset,
// ordered by QueuedAt; an abandoned claim re-enters at the tail by
// bumping QueuedAt.  Both projections survive restart by construction.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/go-redis/redis/v8"

	"github.com/quipflip/quipflip/models"
)

// PromptQueueLock is the lock name serializing copy round claims.
const PromptQueueLock = "queue:prompts"

// depthCacheKey holds the cached copy queue depth.
const depthCacheKey = "queue:prompts:depth"

// depthCacheTTL bounds staleness of the cached depth between writer
// invalidations.
const depthCacheTTL = 2 * time.Second

// Store answers queue queries.  The redis client is optional; without it
// depth reads always hit the database.
type Store struct {
	dbMap     *gorp.DbMap
	redis     *redis.Client
	graceBand int64
	cooldown  int64
}

// NewStore returns a queue store.  graceBand and cooldown are in seconds.
func NewStore(dbMap *gorp.DbMap, redisClient *redis.Client, graceBand int64, cooldown int64) *Store {
	return &Store{
		dbMap:     dbMap,
		redis:     redisClient,
		graceBand: graceBand,
		cooldown:  cooldown,
	}
}

// promptPredicate is the shared WHERE body of the copy queue: submitted
// prompt rounds with fewer than two successful copies, no phraseset, and
// no copy round actively claiming them.
const promptPredicate = "Rounds.Role = 'prompt' AND Rounds.Status = 'submitted' AND " +
	"Rounds.CopyCount < 2 AND " +
	"NOT EXISTS (SELECT 1 FROM Phrasesets WHERE Phrasesets.PromptRoundId = Rounds.RoundId) AND " +
	"NOT EXISTS (SELECT 1 FROM Rounds AS Claims WHERE Claims.PromptRoundId = Rounds.RoundId AND " +
	"Claims.Role = 'copy' AND Claims.Status = 'active' AND Claims.ExpiresAt + ? > ?)"

// NextPromptFor returns the longest waiting prompt the player may copy,
// or nil when none is eligible.  The player's own prompts and prompts the
// player abandoned within the cooldown are skipped.  Callers serialize
// claims by holding PromptQueueLock.
func (s *Store) NextPromptFor(db gorp.SqlExecutor, playerID int64, now int64) (*models.Round, error) {
	var rounds []models.Round
	_, err := db.Select(&rounds, "SELECT Rounds.* FROM Rounds WHERE "+promptPredicate+
		" AND Rounds.PlayerId != ? AND "+
		"NOT EXISTS (SELECT 1 FROM AbandonedAssignment WHERE "+
		"AbandonedAssignment.PlayerId = ? AND "+
		"AbandonedAssignment.PromptRoundId = Rounds.RoundId AND "+
		"AbandonedAssignment.CreatedAt > ?) "+
		"ORDER BY Rounds.QueuedAt, Rounds.RoundId LIMIT 1",
		s.graceBand, now, playerID, playerID, now-s.cooldown)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, nil
	}
	return &rounds[0], nil
}

// CountPromptsFor counts the prompts the player could copy right now.
func (s *Store) CountPromptsFor(db gorp.SqlExecutor, playerID int64, now int64) (int64, error) {
	return db.SelectInt("SELECT COUNT(*) FROM Rounds WHERE "+promptPredicate+
		" AND Rounds.PlayerId != ? AND "+
		"NOT EXISTS (SELECT 1 FROM AbandonedAssignment WHERE "+
		"AbandonedAssignment.PlayerId = ? AND "+
		"AbandonedAssignment.PromptRoundId = Rounds.RoundId AND "+
		"AbandonedAssignment.CreatedAt > ?)",
		s.graceBand, now, playerID, playerID, now-s.cooldown)
}

// Depth returns the copy queue depth across all players, serving from the
// redis cache when fresh.  The discount decision reads this value.
func (s *Store) Depth(ctx context.Context, now int64) (int64, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, depthCacheKey).Result()
		if err == nil {
			if depth, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
				return depth, nil
			}
		} else if err != redis.Nil {
			log.Warnf("Queue depth cache read failed: %v", err)
		}
	}

	depth, err := s.dbMap.SelectInt("SELECT COUNT(*) FROM Rounds WHERE "+promptPredicate,
		s.graceBand, now)
	if err != nil {
		return 0, err
	}

	if s.redis != nil {
		err := s.redis.Set(ctx, depthCacheKey, strconv.FormatInt(depth, 10),
			depthCacheTTL).Err()
		if err != nil {
			log.Warnf("Queue depth cache write failed: %v", err)
		}
	}
	return depth, nil
}

// Invalidate drops the cached depth.  Writers call it after any change to
// the queue membership.
func (s *Store) Invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, depthCacheKey).Err(); err != nil {
		log.Warnf("Queue depth cache invalidation failed: %v", err)
	}
}

// ReturnToTail moves an abandoned prompt to the back of the queue.
func (s *Store) ReturnToTail(db gorp.SqlExecutor, promptRoundID int64, now int64) error {
	_, err := db.Exec("UPDATE Rounds SET QueuedAt = ? WHERE RoundId = ?", now, promptRoundID)
	return err
}

// votablePredicate is the shared WHERE body of vote assignment: sets
// still accepting votes that the player did not contribute to, has not
// voted on, and does not already hold a live vote round against.
const votablePredicate = "(Phrasesets.Status = 'open' OR " +
	"(Phrasesets.Status = 'closing' AND Phrasesets.ClosesAt > ?)) AND " +
	"Phrasesets.PrompterId != ? AND Phrasesets.Copy1PlayerId != ? AND " +
	"Phrasesets.Copy2PlayerId != ? AND " +
	"NOT EXISTS (SELECT 1 FROM Votes WHERE Votes.PhrasesetId = Phrasesets.PhrasesetId AND " +
	"Votes.VoterId = ?) AND " +
	"NOT EXISTS (SELECT 1 FROM Rounds WHERE Rounds.PhrasesetId = Phrasesets.PhrasesetId AND " +
	"Rounds.PlayerId = ? AND Rounds.Role = 'vote' AND Rounds.Status = 'active' AND " +
	"Rounds.ExpiresAt + ? > ?)"

func (s *Store) votableArgs(playerID int64, now int64) []interface{} {
	return []interface{}{now, playerID, playerID, playerID, playerID, playerID,
		s.graceBand, now}
}

// NextPhrasesetFor picks the phraseset the player should vote on, or nil
// when none is eligible.  Sets at five or more votes drain first in
// FifthVoteAt order, then sets at three or four in ThirdVoteAt order,
// then a random set still under three votes.
func (s *Store) NextPhrasesetFor(db gorp.SqlExecutor, playerID int64, now int64) (*models.Phraseset, error) {
	tiers := []string{
		"Phrasesets.VoteCount >= 5 ORDER BY Phrasesets.FifthVoteAt, Phrasesets.PhrasesetId",
		"Phrasesets.VoteCount >= 3 AND Phrasesets.VoteCount < 5 " +
			"ORDER BY Phrasesets.ThirdVoteAt, Phrasesets.PhrasesetId",
		"Phrasesets.VoteCount < 3 ORDER BY RAND()",
	}
	for _, tier := range tiers {
		var sets []models.Phraseset
		_, err := db.Select(&sets, "SELECT Phrasesets.* FROM Phrasesets WHERE "+
			votablePredicate+" AND "+tier+" LIMIT 1", s.votableArgs(playerID, now)...)
		if err != nil {
			return nil, err
		}
		if len(sets) > 0 {
			return &sets[0], nil
		}
	}
	return nil, nil
}

// CountPhrasesetsFor counts the phrasesets the player could vote on right
// now.
func (s *Store) CountPhrasesetsFor(db gorp.SqlExecutor, playerID int64, now int64) (int64, error) {
	return db.SelectInt("SELECT COUNT(*) FROM Phrasesets WHERE "+votablePredicate,
		s.votableArgs(playerID, now)...)
}
