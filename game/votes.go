// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package game

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/ledger"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/phrase"
	"github.com/quipflip/quipflip/scoring"
)

// phrasesetLock names the lock serializing votes and closure for one
// phraseset.
func phrasesetLock(phrasesetID int64) string {
	return "phraseset:" + strconv.FormatInt(phrasesetID, 10)
}

// CastVote records the player's pick for their active vote round on the
// phraseset, credits the payout for a correct pick, advances the vote
// timeline and clears the round, all in one transaction under the
// phraseset lock.  The answer is revealed immediately.
func (s *Service) CastVote(ctx context.Context, playerID int64, phrasesetID int64, chosenRaw string) (*gameapi.VoteResponse, error) {
	now := time.Now().Unix()
	player, err := models.GetPlayerByID(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	if player.ActiveRoundId == 0 {
		return nil, NewError(gameapi.CodeExpired,
			"no active vote round on this phraseset")
	}
	round, err := models.GetRoundByID(s.dbMap, player.ActiveRoundId)
	if err != nil {
		return nil, err
	}
	if round.Role != models.RoleVote {
		return nil, NewError(gameapi.CodeExpired,
			"your active round is not a vote round")
	}
	if round.PhrasesetId != phrasesetID {
		return nil, NewError(gameapi.CodeExpired,
			"phraseset does not match your active vote round")
	}
	if now > round.ExpiresAt+s.cfg.GraceBand {
		if err := s.reapExpiredRound(ctx, round.Id); err != nil {
			return nil, err
		}
		return nil, NewError(gameapi.CodeExpired, "the vote window has closed")
	}

	chosen := phrase.Normalize(chosenRaw)

	unlock, err := s.locker.Lock(ctx, phrasesetLock(phrasesetID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var resp *gameapi.VoteResponse
	err = s.withTx(func(tx *gorp.Transaction) error {
		ps, err := models.GetPhrasesetByIDForUpdate(tx, phrasesetID)
		if err == sql.ErrNoRows {
			return errNotFound("phraseset")
		}
		if err != nil {
			return err
		}
		if ps.Status != models.PhrasesetStatusOpen &&
			ps.Status != models.PhrasesetStatusClosing {
			return NewError(gameapi.CodeExpired,
				"voting on this phraseset has ended")
		}
		if ps.IsContributor(playerID) {
			return NewError(gameapi.CodeNotAContributor,
				"contributors may not vote on their own phraseset")
		}
		existing, err := models.GetVote(tx, phrasesetID, playerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return NewError(gameapi.CodeAlreadyVoted,
				"you already voted on this phraseset")
		}
		if chosen != ps.OriginalPhrase && chosen != ps.CopyPhrase1 &&
			chosen != ps.CopyPhrase2 {
			return NewError(gameapi.CodeInvalidPhrase,
				"phrase is not one of the three choices")
		}

		lockedRound, err := models.GetRoundByIDForUpdate(tx, round.Id)
		if err != nil {
			return err
		}
		if serr := s.submittableErr(lockedRound, now); serr != nil {
			return serr
		}

		correct := chosen == ps.OriginalPhrase
		var payout int64
		if correct {
			payout = s.cfg.VotePayout
		}
		vote := &models.Vote{
			PhrasesetId: phrasesetID,
			VoterId:     playerID,
			VotedIndex:  displayIndex(ps, lockedRound.PhraseOrder, chosen),
			VotedPhrase: chosen,
			CreatedAt:   now,
			Payout:      payout,
		}
		if correct {
			vote.Correct = 1
		}
		if err := tx.Insert(vote); err != nil {
			return err
		}
		if payout > 0 {
			if _, err := ledger.Credit(tx, playerID, payout,
				models.TxKindVotePayout, models.VoteRef(vote.Id), now); err != nil {
				return err
			}
		}

		lockedRound.Status = models.RoundStatusSubmitted
		lockedRound.SubmittedPhrase = chosen
		lockedRound.SubmittedAt = now
		if _, err := tx.Update(lockedRound); err != nil {
			return err
		}
		if err := models.SetActiveRound(tx, playerID, 0); err != nil {
			return err
		}

		ps.VoteCount++
		if ps.VoteCount == 3 && ps.ThirdVoteAt == 0 {
			ps.ThirdVoteAt = now
			log.Debugf("Phraseset %d reached its third vote", ps.Id)
		}
		if ps.VoteCount == 5 && ps.FifthVoteAt == 0 {
			ps.Status = models.PhrasesetStatusClosing
			ps.FifthVoteAt = now
			ps.ClosesAt = now + s.cfg.FifthVoteWindow
			log.Debugf("Phraseset %d reached its fifth vote, closing at %d",
				ps.Id, ps.ClosesAt)
		}
		capped := ps.VoteCount >= s.cfg.MaxVotes
		if capped {
			// The cap closes immediately; outstanding vote rounds can no
			// longer land.
			ps.Status = models.PhrasesetStatusClosed
			if ps.ClosesAt == 0 || ps.ClosesAt > now {
				ps.ClosesAt = now
			}
		}
		if _, err := tx.Update(ps); err != nil {
			return err
		}
		if capped {
			if err := s.finalizePhraseset(tx, ps, now); err != nil {
				return err
			}
		}

		resp = &gameapi.VoteResponse{
			Correct:        correct,
			Payout:         payout,
			OriginalPhrase: ps.OriginalPhrase,
			YourChoice:     chosen,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Player %d voted on phraseset %d (correct=%v)", playerID,
		phrasesetID, resp.Correct)
	return resp, nil
}

// finalizePhraseset scores a closed phraseset and records the outcome.
// Contributor prizes are written to ResultView rows and credited when
// claimed, not here.  Runs inside the caller's transaction.
func (s *Service) finalizePhraseset(tx *gorp.Transaction, ps *models.Phraseset, now int64) error {
	votes, err := models.GetVotesForPhraseset(tx, ps.Id)
	if err != nil {
		return err
	}
	res := scoring.Score(tallyVotes(ps, votes), ps.TotalPool, s.cfg.VotePayout)

	outcomes := []struct {
		playerID int64
		role     string
		amount   int64
	}{
		{ps.PrompterId, models.ContributorOriginal, res.PayoutOriginal},
		{ps.Copy1PlayerId, models.ContributorCopy1, res.PayoutCopy1},
		{ps.Copy2PlayerId, models.ContributorCopy2, res.PayoutCopy2},
	}
	for _, o := range outcomes {
		view := &models.ResultView{
			PhrasesetId:  ps.Id,
			PlayerId:     o.playerID,
			Role:         o.role,
			PayoutAmount: o.amount,
		}
		if err := tx.Insert(view); err != nil {
			return err
		}
	}

	ps.Status = models.PhrasesetStatusFinalized
	ps.FinalizedAt = now
	if _, err := tx.Update(ps); err != nil {
		return err
	}
	log.Infof("Phraseset %d finalized: original %d, copy1 %d, copy2 %d, rake %d",
		ps.Id, res.PayoutOriginal, res.PayoutCopy1, res.PayoutCopy2, res.Rake)
	return nil
}

// closeExpiredPhraseset closes a closing phraseset whose deadline has
// passed, unless a vote round still inside its grace window could add a
// vote.  Finalization happens in the same transaction.
func (s *Service) closeExpiredPhraseset(ctx context.Context, phrasesetID int64) error {
	now := time.Now().Unix()
	unlock, err := s.locker.Lock(ctx, phrasesetLock(phrasesetID))
	if err != nil {
		return err
	}
	defer unlock()

	return s.withTx(func(tx *gorp.Transaction) error {
		ps, err := models.GetPhrasesetByIDForUpdate(tx, phrasesetID)
		if err != nil {
			return err
		}
		if ps.Status != models.PhrasesetStatusClosing || ps.ClosesAt >= now {
			return nil
		}
		holds, err := models.CountActiveVoteRoundsInGrace(tx, ps.Id, now,
			s.cfg.GraceBand)
		if err != nil {
			return err
		}
		if holds > 0 {
			log.Debugf("Phraseset %d closure deferred, %d vote rounds in grace",
				ps.Id, holds)
			return nil
		}
		ps.Status = models.PhrasesetStatusClosed
		if _, err := tx.Update(ps); err != nil {
			return err
		}
		return s.finalizePhraseset(tx, ps, now)
	})
}

// closeStalledPhraseset moves an open phraseset that sat at three or four
// votes for the whole third vote window into closing with an immediate
// deadline.  The fifth vote marker stays unset.
func (s *Service) closeStalledPhraseset(ctx context.Context, phrasesetID int64) error {
	now := time.Now().Unix()
	unlock, err := s.locker.Lock(ctx, phrasesetLock(phrasesetID))
	if err != nil {
		return err
	}
	defer unlock()

	return s.withTx(func(tx *gorp.Transaction) error {
		ps, err := models.GetPhrasesetByIDForUpdate(tx, phrasesetID)
		if err != nil {
			return err
		}
		if ps.Status != models.PhrasesetStatusOpen || ps.ThirdVoteAt == 0 ||
			ps.ThirdVoteAt+s.cfg.ThirdVoteWindow >= now {
			return nil
		}
		ps.Status = models.PhrasesetStatusClosing
		ps.ClosesAt = now
		log.Infof("Phraseset %d stalled at %d votes, closing", ps.Id, ps.VoteCount)
		_, err = tx.Update(ps)
		return err
	})
}
