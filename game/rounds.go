// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package game

import (
	"context"
	"database/sql"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/ledger"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/queue"
)

// promptLock names the lock serializing phraseset creation for one prompt
// round.
func promptLock(promptRoundID int64) string {
	return "prompt:" + strconv.FormatInt(promptRoundID, 10)
}

// canStartErr checks the per player preconditions shared by all three
// round starts.  Balance is checked before the active round so a broke
// player learns the real blocker first.
func canStartErr(player *models.Player, cost int64) *Error {
	if player.Balance < cost {
		return errInsufficientBalance(cost, player.Balance)
	}
	if player.ActiveRoundId != 0 {
		return errAlreadyInRound(player.ActiveRoundId)
	}
	return nil
}

// loadStartablePlayer fetches the player and reaps their active round
// when its grace window has fully elapsed, so a pending sweep never
// blocks the next action or hides a due refund.
func (s *Service) loadStartablePlayer(ctx context.Context, playerID int64, now int64) (*models.Player, error) {
	player, err := models.GetPlayerByID(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	if player.ActiveRoundId == 0 {
		return player, nil
	}
	round, err := models.GetRoundByID(s.dbMap, player.ActiveRoundId)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusActive || now <= round.ExpiresAt+s.cfg.GraceBand {
		return player, nil
	}
	if err := s.reapExpiredRound(ctx, round.Id); err != nil {
		return nil, err
	}
	return models.GetPlayerByID(s.dbMap, playerID)
}

// Availability reports which round types the player can start right now,
// the queue depths behind that answer and the current copy cost.
func (s *Service) Availability(ctx context.Context, playerID int64) (*gameapi.AvailabilityResponse, error) {
	now := time.Now().Unix()
	player, err := s.loadStartablePlayer(ctx, playerID, now)
	if err != nil {
		return nil, err
	}

	prompts, err := s.queue.CountPromptsFor(s.dbMap, playerID, now)
	if err != nil {
		return nil, err
	}
	sets, err := s.queue.CountPhrasesetsFor(s.dbMap, playerID, now)
	if err != nil {
		return nil, err
	}
	depth, err := s.queue.Depth(ctx, now)
	if err != nil {
		return nil, err
	}
	outstanding, err := models.CountOutstandingPrompts(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}

	discount := depth > s.cfg.DiscountDepth
	copyCost := s.cfg.CopyCost
	if discount {
		copyCost = s.cfg.CopyCostDiscount
	}

	free := player.ActiveRoundId == 0
	resp := &gameapi.AvailabilityResponse{
		CanPrompt: free && player.Balance >= s.cfg.PromptCost &&
			outstanding < s.cfg.MaxOutstanding,
		CanCopy:            free && player.Balance >= copyCost && prompts > 0,
		CanVote:            free && player.Balance >= s.cfg.VoteCost && sets > 0,
		PromptsWaiting:     prompts,
		PhrasesetsWaiting:  sets,
		CopyDiscountActive: discount,
		CopyCost:           copyCost,
	}
	if player.ActiveRoundId != 0 {
		id := player.ActiveRoundId
		resp.CurrentRoundId = &id
	}
	return resp, nil
}

// StartPromptRound assigns a random prompt and opens a prompt round.
// The round insert, the entry debit and the active round pointer commit
// together.
func (s *Service) StartPromptRound(ctx context.Context, playerID int64) (*gameapi.PromptRoundResponse, error) {
	now := time.Now().Unix()
	player, err := s.loadStartablePlayer(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	if err := canStartErr(player, s.cfg.PromptCost); err != nil {
		return nil, err
	}
	outstanding, err := models.CountOutstandingPrompts(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	if outstanding >= s.cfg.MaxOutstanding {
		return nil, NewError(gameapi.CodeMaxOutstandingPrompts,
			"%d of your phrasesets are still collecting votes", outstanding)
	}

	prompt, err := models.GetRandomPrompt(s.dbMap)
	if err == sql.ErrNoRows {
		return nil, NewError(gameapi.CodeNoPromptsAvailable,
			"the prompt library is empty")
	}
	if err != nil {
		return nil, err
	}

	round := &models.Round{
		PlayerId:   playerID,
		Role:       models.RolePrompt,
		Status:     models.RoundStatusActive,
		Cost:       s.cfg.PromptCost,
		CreatedAt:  now,
		ExpiresAt:  now + s.cfg.PromptWindow,
		PromptId:   prompt.Id,
		PromptText: prompt.Text,
	}
	err = s.withTx(func(tx *gorp.Transaction) error {
		locked, err := models.GetPlayerByIDForUpdate(tx, playerID)
		if err != nil {
			return err
		}
		if err := canStartErr(locked, s.cfg.PromptCost); err != nil {
			return err
		}
		if err := tx.Insert(round); err != nil {
			return err
		}
		if _, err := ledger.Debit(tx, playerID, round.Cost,
			models.TxKindPromptEntry, models.RoundRef(round.Id), now); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE Prompts SET UsageCount = UsageCount + 1 "+
			"WHERE PromptId = ?", prompt.Id); err != nil {
			return err
		}
		return models.SetActiveRound(tx, playerID, round.Id)
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("Player %d started prompt round %d", playerID, round.Id)
	return &gameapi.PromptRoundResponse{
		RoundId:    round.Id,
		PromptText: round.PromptText,
		Cost:       round.Cost,
		ExpiresAt:  round.ExpiresAt,
	}, nil
}

// StartCopyRound claims the longest waiting eligible prompt and opens a
// copy round.  The discount and the resulting system contribution are
// fixed here, at claim time.  Claims across the instance are serialized
// by the prompt queue lock.
func (s *Service) StartCopyRound(ctx context.Context, playerID int64) (*gameapi.CopyRoundResponse, error) {
	now := time.Now().Unix()
	player, err := s.loadStartablePlayer(ctx, playerID, now)
	if err != nil {
		return nil, err
	}

	depth, err := s.queue.Depth(ctx, now)
	if err != nil {
		return nil, err
	}
	discount := depth > s.cfg.DiscountDepth
	cost := s.cfg.CopyCost
	if discount {
		cost = s.cfg.CopyCostDiscount
	}
	if err := canStartErr(player, cost); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, queue.PromptQueueLock)
	if err != nil {
		return nil, err
	}
	defer unlock()

	round := &models.Round{
		PlayerId:           playerID,
		Role:               models.RoleCopy,
		Status:             models.RoundStatusActive,
		Cost:               cost,
		CreatedAt:          now,
		ExpiresAt:          now + s.cfg.CopyWindow,
		SystemContribution: s.cfg.CopyCost - cost,
	}
	if discount {
		round.DiscountApplied = 1
	}
	err = s.withTx(func(tx *gorp.Transaction) error {
		locked, err := models.GetPlayerByIDForUpdate(tx, playerID)
		if err != nil {
			return err
		}
		if err := canStartErr(locked, cost); err != nil {
			return err
		}
		prompt, err := s.queue.NextPromptFor(tx, playerID, now)
		if err != nil {
			return err
		}
		if prompt == nil {
			return NewError(gameapi.CodeNoPromptsAvailable,
				"no prompts are waiting for copies")
		}
		round.PromptRoundId = prompt.Id
		round.OriginalPhrase = prompt.SubmittedPhrase
		if err := tx.Insert(round); err != nil {
			return err
		}
		if _, err := ledger.Debit(tx, playerID, cost,
			models.TxKindCopyEntry, models.RoundRef(round.Id), now); err != nil {
			return err
		}
		if round.SystemContribution > 0 {
			err := ledger.ApplyHouse(tx, -round.SystemContribution,
				models.TxKindSystemContribution, models.RoundRef(round.Id), now)
			if err != nil {
				return err
			}
		}
		return models.SetActiveRound(tx, playerID, round.Id)
	})
	if err != nil {
		return nil, err
	}
	s.queue.Invalidate(ctx)

	log.Debugf("Player %d started copy round %d on prompt round %d (cost %d)",
		playerID, round.Id, round.PromptRoundId, cost)
	return &gameapi.CopyRoundResponse{
		RoundId:        round.Id,
		OriginalPhrase: round.OriginalPhrase,
		Cost:           cost,
		DiscountActive: discount,
		ExpiresAt:      round.ExpiresAt,
	}, nil
}

// StartVoteRound assigns the highest priority eligible phraseset and
// opens a vote round.  The per voter phrase order is fixed here and
// persisted, so every later render shows the same shuffle.
func (s *Service) StartVoteRound(ctx context.Context, playerID int64) (*gameapi.VoteRoundResponse, error) {
	now := time.Now().Unix()
	player, err := s.loadStartablePlayer(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	if err := canStartErr(player, s.cfg.VoteCost); err != nil {
		return nil, err
	}

	round := &models.Round{
		PlayerId:    playerID,
		Role:        models.RoleVote,
		Status:      models.RoundStatusActive,
		Cost:        s.cfg.VoteCost,
		CreatedAt:   now,
		ExpiresAt:   now + s.cfg.VoteWindow,
		PhraseOrder: formatPhraseOrder(rand.Perm(3)),
	}
	var assigned *models.Phraseset
	err = s.withTx(func(tx *gorp.Transaction) error {
		locked, err := models.GetPlayerByIDForUpdate(tx, playerID)
		if err != nil {
			return err
		}
		if err := canStartErr(locked, s.cfg.VoteCost); err != nil {
			return err
		}
		assigned, err = s.queue.NextPhrasesetFor(tx, playerID, now)
		if err != nil {
			return err
		}
		if assigned == nil {
			return NewError(gameapi.CodeNoPhrasesetsAvailable,
				"no phrasesets are waiting for votes")
		}
		round.PhrasesetId = assigned.Id
		if err := tx.Insert(round); err != nil {
			return err
		}
		if _, err := ledger.Debit(tx, playerID, round.Cost,
			models.TxKindVoteEntry, models.RoundRef(round.Id), now); err != nil {
			return err
		}
		return models.SetActiveRound(tx, playerID, round.Id)
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("Player %d started vote round %d on phraseset %d",
		playerID, round.Id, round.PhrasesetId)
	return &gameapi.VoteRoundResponse{
		RoundId:     round.Id,
		PhrasesetId: assigned.Id,
		PromptText:  assigned.PromptText,
		Phrases:     orderedPhrases(assigned, round.PhraseOrder),
		ExpiresAt:   round.ExpiresAt,
	}, nil
}

// formatPhraseOrder encodes a permutation of 0,1,2 for storage.
func formatPhraseOrder(perm []int) string {
	parts := make([]string, len(perm))
	for i, p := range perm {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// orderedPhrases returns the phraseset's phrases in the round's persisted
// shuffle order.  A malformed order falls back to stored order.
func orderedPhrases(ps *models.Phraseset, order string) []string {
	phrases := ps.Phrases()
	parts := strings.Split(order, ",")
	if len(parts) != len(phrases) {
		return phrases[:]
	}
	out := make([]string, 0, len(phrases))
	for _, part := range parts {
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= len(phrases) {
			return phrases[:]
		}
		out = append(out, phrases[idx])
	}
	return out
}

// displayIndex returns the position of the phrase within the round's
// shuffled display order.  The caller has already checked the phrase is
// one of the three.
func displayIndex(ps *models.Phraseset, order string, chosen string) int64 {
	for i, p := range orderedPhrases(ps, order) {
		if p == chosen {
			return int64(i)
		}
	}
	return 0
}

// SubmitPhrase validates and records the phrase for the player's prompt
// or copy round.  A validation failure leaves the round active so the
// player can retry within the window.
func (s *Service) SubmitPhrase(ctx context.Context, playerID int64, roundID int64, raw string) (*gameapi.SubmitPhraseResponse, error) {
	now := time.Now().Unix()
	round, err := models.GetRoundByID(s.dbMap, roundID)
	if err == sql.ErrNoRows {
		return nil, errNotFound("round")
	}
	if err != nil {
		return nil, err
	}
	if round.PlayerId != playerID {
		return nil, errNotFound("round")
	}

	if round.Status == models.RoundStatusActive && now > round.ExpiresAt+s.cfg.GraceBand {
		if err := s.reapExpiredRound(ctx, round.Id); err != nil {
			return nil, err
		}
		return nil, NewError(gameapi.CodeExpired, "the submission window has closed")
	}
	if round.Status != models.RoundStatusActive {
		return nil, NewError(gameapi.CodeExpired, "round is no longer active")
	}

	switch round.Role {
	case models.RolePrompt:
		return s.submitPromptRound(ctx, round, raw, now)
	case models.RoleCopy:
		return s.submitCopyRound(ctx, round, raw, now)
	default:
		return nil, NewError(gameapi.CodeInvalidPhrase,
			"vote rounds are submitted through the phraseset vote endpoint")
	}
}

// submittableErr re-checks inside the transaction that the locked round
// is still open for submission.
func (s *Service) submittableErr(round *models.Round, now int64) *Error {
	if round.Status != models.RoundStatusActive {
		return NewError(gameapi.CodeExpired, "round is no longer active")
	}
	if now > round.ExpiresAt+s.cfg.GraceBand {
		return NewError(gameapi.CodeExpired, "the submission window has closed")
	}
	return nil
}

func (s *Service) submitPromptRound(ctx context.Context, round *models.Round, raw string, now int64) (*gameapi.SubmitPhraseResponse, error) {
	var normalized string
	err := s.withTx(func(tx *gorp.Transaction) error {
		locked, err := models.GetRoundByIDForUpdate(tx, round.Id)
		if err != nil {
			return err
		}
		if serr := s.submittableErr(locked, now); serr != nil {
			return serr
		}

		phrase, verr := s.validator.ValidateOriginal(raw, locked.PromptText)
		if verr != nil {
			return phraseError(verr)
		}
		normalized = phrase

		locked.Status = models.RoundStatusSubmitted
		locked.SubmittedPhrase = normalized
		locked.SubmittedAt = now
		locked.QueuedAt = now
		if _, err := tx.Update(locked); err != nil {
			return err
		}
		return models.SetActiveRound(tx, round.PlayerId, 0)
	})
	if err != nil {
		return nil, err
	}
	s.queue.Invalidate(ctx)

	log.Debugf("Player %d submitted prompt round %d", round.PlayerId, round.Id)
	return &gameapi.SubmitPhraseResponse{Success: true, Phrase: normalized}, nil
}

func (s *Service) submitCopyRound(ctx context.Context, round *models.Round, raw string, now int64) (*gameapi.SubmitPhraseResponse, error) {
	unlock, err := s.locker.Lock(ctx, promptLock(round.PromptRoundId))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var normalized string
	err = s.withTx(func(tx *gorp.Transaction) error {
		locked, err := models.GetRoundByIDForUpdate(tx, round.Id)
		if err != nil {
			return err
		}
		if serr := s.submittableErr(locked, now); serr != nil {
			return serr
		}
		promptRound, err := models.GetRoundByIDForUpdate(tx, locked.PromptRoundId)
		if err != nil {
			return err
		}

		priors := []string{locked.OriginalPhrase}
		copies, err := models.GetSubmittedCopyRounds(tx, promptRound.Id)
		if err != nil {
			return err
		}
		for _, c := range copies {
			priors = append(priors, c.SubmittedPhrase)
		}

		phrase, verr := s.validator.ValidateCopy(raw, promptRound.PromptText, priors...)
		if verr != nil {
			return phraseError(verr)
		}
		normalized = phrase

		locked.Status = models.RoundStatusSubmitted
		locked.SubmittedPhrase = normalized
		locked.SubmittedAt = now
		if _, err := tx.Update(locked); err != nil {
			return err
		}
		promptRound.CopyCount++
		if _, err := tx.Update(promptRound); err != nil {
			return err
		}
		if err := models.SetActiveRound(tx, round.PlayerId, 0); err != nil {
			return err
		}
		if promptRound.CopyCount == 2 {
			return s.createPhraseset(tx, promptRound, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.queue.Invalidate(ctx)

	log.Debugf("Player %d submitted copy round %d", round.PlayerId, round.Id)
	return &gameapi.SubmitPhraseResponse{Success: true, Phrase: normalized}, nil
}

// createPhraseset materializes the phraseset once the second copy is in.
// Runs inside the submit transaction while the prompt lock is held, so
// exactly one caller observes the count reaching two.
func (s *Service) createPhraseset(tx *gorp.Transaction, promptRound *models.Round, now int64) error {
	copies, err := models.GetSubmittedCopyRounds(tx, promptRound.Id)
	if err != nil {
		return err
	}
	if len(copies) < 2 {
		return nil
	}
	c1, c2 := copies[0], copies[1]

	contrib := c1.SystemContribution + c2.SystemContribution
	ps := &models.Phraseset{
		PromptRoundId:      promptRound.Id,
		CopyRound1Id:       c1.Id,
		CopyRound2Id:       c2.Id,
		PrompterId:         promptRound.PlayerId,
		Copy1PlayerId:      c1.PlayerId,
		Copy2PlayerId:      c2.PlayerId,
		PromptText:         promptRound.PromptText,
		OriginalPhrase:     promptRound.SubmittedPhrase,
		CopyPhrase1:        c1.SubmittedPhrase,
		CopyPhrase2:        c2.SubmittedPhrase,
		Status:             models.PhrasesetStatusOpen,
		TotalPool:          s.cfg.PrizePool + contrib,
		SystemContribution: contrib,
		CreatedAt:          now,
	}
	if err := tx.Insert(ps); err != nil {
		return err
	}
	log.Infof("Phraseset %d created from prompt round %d (pool %d)",
		ps.Id, promptRound.Id, ps.TotalPool)
	return nil
}

// CurrentRound returns the player's active round, reaping it first when
// its grace window has fully elapsed.  All response fields are null when
// there is nothing active.
func (s *Service) CurrentRound(ctx context.Context, playerID int64) (*gameapi.CurrentRoundResponse, error) {
	now := time.Now().Unix()
	player, err := s.loadStartablePlayer(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	if player.ActiveRoundId == 0 {
		return &gameapi.CurrentRoundResponse{}, nil
	}
	round, err := models.GetRoundByID(s.dbMap, player.ActiveRoundId)
	if err != nil {
		return nil, err
	}

	state := &gameapi.RoundState{}
	switch round.Role {
	case models.RolePrompt:
		state.PromptText = round.PromptText
		state.Cost = round.Cost
	case models.RoleCopy:
		state.OriginalPhrase = round.OriginalPhrase
		state.Cost = round.Cost
		state.DiscountActive = round.DiscountApplied == 1
	case models.RoleVote:
		ps, err := models.GetPhrasesetByID(s.dbMap, round.PhrasesetId)
		if err != nil {
			return nil, err
		}
		state.PhrasesetId = ps.Id
		state.PromptText = ps.PromptText
		state.Phrases = orderedPhrases(ps, round.PhraseOrder)
	}

	id, role, expires := round.Id, round.Role, round.ExpiresAt
	return &gameapi.CurrentRoundResponse{
		RoundId:   &id,
		RoundType: &role,
		ExpiresAt: &expires,
		State:     state,
	}, nil
}

// GetRound returns the owner's view of one round.
func (s *Service) GetRound(ctx context.Context, playerID int64, roundID int64) (*gameapi.RoundDetailsResponse, error) {
	round, err := models.GetRoundByID(s.dbMap, roundID)
	if err == sql.ErrNoRows {
		return nil, errNotFound("round")
	}
	if err != nil {
		return nil, err
	}
	if round.PlayerId != playerID {
		return nil, errNotFound("round")
	}

	resp := &gameapi.RoundDetailsResponse{
		RoundId:         round.Id,
		RoundType:       round.Role,
		Status:          round.Status,
		ExpiresAt:       round.ExpiresAt,
		SubmittedPhrase: round.SubmittedPhrase,
		Cost:            round.Cost,
	}
	switch round.Role {
	case models.RolePrompt:
		resp.PromptText = round.PromptText
	case models.RoleCopy:
		resp.OriginalPhrase = round.OriginalPhrase
	}
	return resp, nil
}

// reapExpiredRound applies the timeout policy to the round in its own
// transaction.  Safe to race with the sweeper: whoever locks the row
// first applies it, the loser sees a non active status and does nothing.
func (s *Service) reapExpiredRound(ctx context.Context, roundID int64) error {
	now := time.Now().Unix()
	var wasCopy bool
	err := s.withTx(func(tx *gorp.Transaction) error {
		round, err := models.GetRoundByIDForUpdate(tx, roundID)
		if err != nil {
			return err
		}
		if round.Status != models.RoundStatusActive ||
			now <= round.ExpiresAt+s.cfg.GraceBand {
			return nil
		}
		wasCopy = round.Role == models.RoleCopy
		return s.timeoutRound(tx, round, now)
	})
	if err != nil {
		return err
	}
	if wasCopy {
		s.queue.Invalidate(ctx)
	}
	return nil
}

// timeoutRound applies the per role timeout policy to a locked active
// round.  Prompt and copy timeouts refund the entry less a tenth, the
// withheld tenth is booked house side; a copy timeout additionally
// records the abandonment, unwinds the system contribution and returns
// the prompt to the tail of the queue.  Vote timeouts forfeit the entry.
func (s *Service) timeoutRound(tx *gorp.Transaction, round *models.Round, now int64) error {
	refund := round.Cost - round.Cost/10
	penalty := round.Cost - refund

	switch round.Role {
	case models.RolePrompt:
		round.Status = models.RoundStatusExpired
		if _, err := ledger.Credit(tx, round.PlayerId, refund,
			models.TxKindRefund, models.RoundRef(round.Id), now); err != nil {
			return err
		}
		if err := ledger.ApplyHouse(tx, penalty, models.TxKindPenalty,
			models.RoundRef(round.Id), now); err != nil {
			return err
		}

	case models.RoleCopy:
		round.Status = models.RoundStatusAbandoned
		if _, err := ledger.Credit(tx, round.PlayerId, refund,
			models.TxKindRefund, models.RoundRef(round.Id), now); err != nil {
			return err
		}
		if err := ledger.ApplyHouse(tx, penalty, models.TxKindPenalty,
			models.RoundRef(round.Id), now); err != nil {
			return err
		}
		if round.SystemContribution > 0 {
			err := ledger.ApplyHouse(tx, round.SystemContribution,
				models.TxKindSystemContribution, models.RoundRef(round.Id), now)
			if err != nil {
				return err
			}
		}
		abandonment := &models.AbandonedAssignment{
			PromptRoundId: round.PromptRoundId,
			PlayerId:      round.PlayerId,
			CreatedAt:     now,
		}
		if err := tx.Insert(abandonment); err != nil {
			return err
		}
		if err := s.queue.ReturnToTail(tx, round.PromptRoundId, now); err != nil {
			return err
		}

	case models.RoleVote:
		round.Status = models.RoundStatusExpired
	}

	if _, err := tx.Update(round); err != nil {
		return err
	}
	if err := models.SetActiveRound(tx, round.PlayerId, 0); err != nil {
		return err
	}
	log.Infof("Round %d (%s) timed out for player %d", round.Id, round.Role,
		round.PlayerId)
	return nil
}
