// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package game

import (
	"context"
	"sync"
	"time"

	"github.com/quipflip/quipflip/models"
)

// sweepBatchSize caps how many rounds or phrasesets a single sweep pass
// handles.  Anything left over is picked up on the next tick.
const sweepBatchSize = 100

// Sweep runs one pass of deadline enforcement: active rounds past their
// grace window are timed out, open phrasesets stalled since their third
// vote are moved into closing, and closing phrasesets past their
// deadline are closed and finalized.  Every item is handled in its own
// transaction; one failure does not stop the pass.
func (s *Service) Sweep(ctx context.Context) {
	now := time.Now().Unix()

	rounds, err := models.GetExpiredRounds(s.dbMap, now, s.cfg.GraceBand,
		sweepBatchSize)
	if err != nil {
		log.Errorf("Listing expired rounds failed: %v", err)
	}
	for _, r := range rounds {
		if ctx.Err() != nil {
			return
		}
		if err := s.reapExpiredRound(ctx, r.Id); err != nil {
			log.Errorf("Timing out round %d failed: %v", r.Id, err)
		}
	}

	stalled, err := models.GetStalledOpenPhrasesets(s.dbMap, now,
		s.cfg.ThirdVoteWindow, sweepBatchSize)
	if err != nil {
		log.Errorf("Listing stalled phrasesets failed: %v", err)
	}
	for _, ps := range stalled {
		if ctx.Err() != nil {
			return
		}
		if err := s.closeStalledPhraseset(ctx, ps.Id); err != nil {
			log.Errorf("Closing stalled phraseset %d failed: %v", ps.Id, err)
		}
	}

	closable, err := models.GetClosablePhrasesets(s.dbMap, now, sweepBatchSize)
	if err != nil {
		log.Errorf("Listing closable phrasesets failed: %v", err)
	}
	for _, ps := range closable {
		if ctx.Err() != nil {
			return
		}
		if err := s.closeExpiredPhraseset(ctx, ps.Id); err != nil {
			log.Errorf("Finalizing phraseset %d failed: %v", ps.Id, err)
		}
	}
}

// RunSweeper sweeps on a fixed interval until the context is canceled.
//
// This function must be run as a goroutine.
func (s *Service) RunSweeper(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	log.Infof("Sweeper started, interval %v", s.cfg.SweepInterval)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Sweeper done")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
