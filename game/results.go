// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package game

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/ledger"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/scoring"
)

// List item statuses for contributions that are not a phraseset yet.
const (
	statusWaitingCopies = "waiting_copies"
	statusWaitingCopy1  = "waiting_copy1"
)

// displayStatus maps the stored phraseset status to the client
// vocabulary.  The short lived closed state reads as closing.
func displayStatus(status string) string {
	switch status {
	case models.PhrasesetStatusOpen:
		return "voting"
	case models.PhrasesetStatusClosed:
		return "closing"
	}
	return status
}

// rolePhrase returns the phrase contributed by the role.
func rolePhrase(ps *models.Phraseset, role string) string {
	switch role {
	case models.ContributorOriginal:
		return ps.OriginalPhrase
	case models.ContributorCopy1:
		return ps.CopyPhrase1
	case models.ContributorCopy2:
		return ps.CopyPhrase2
	}
	return ""
}

// roleGroup collapses the three contributor roles into the prompt/copy
// pair used by list filters.
func roleGroup(role string) string {
	if role == models.ContributorOriginal {
		return "prompt"
	}
	return "copy"
}

// tallyVotes counts the votes per phrase.
func tallyVotes(ps *models.Phraseset, votes []models.Vote) scoring.Tally {
	var tally scoring.Tally
	for _, v := range votes {
		switch v.VotedPhrase {
		case ps.OriginalPhrase:
			tally.Original++
		case ps.CopyPhrase1:
			tally.Copy1++
		case ps.CopyPhrase2:
			tally.Copy2++
		}
	}
	return tally
}

// buildResults assembles the scoring block of a finalized phraseset from
// its immutable votes.
func (s *Service) buildResults(db gorp.SqlExecutor, ps *models.Phraseset, votes []models.Vote) (*gameapi.PhrasesetResults, error) {
	tally := tallyVotes(ps, votes)
	res := scoring.Score(tally, ps.TotalPool, s.cfg.VotePayout)

	names, err := models.GetUsernames(db, ps.PrompterId, ps.Copy1PlayerId,
		ps.Copy2PlayerId)
	if err != nil {
		return nil, err
	}
	return &gameapi.PhrasesetResults{
		TotalPool: ps.TotalPool,
		PrizePool: res.PrizePool,
		Rake:      res.Rake,
		Payouts: map[string]gameapi.PayoutLine{
			models.ContributorOriginal: {
				PlayerId: ps.PrompterId,
				Username: names[ps.PrompterId],
				Phrase:   ps.OriginalPhrase,
				Votes:    tally.Original,
				Points:   res.PointsOriginal,
				Payout:   res.PayoutOriginal,
			},
			models.ContributorCopy1: {
				PlayerId: ps.Copy1PlayerId,
				Username: names[ps.Copy1PlayerId],
				Phrase:   ps.CopyPhrase1,
				Votes:    tally.Copy1,
				Points:   res.PointsCopy1,
				Payout:   res.PayoutCopy1,
			},
			models.ContributorCopy2: {
				PlayerId: ps.Copy2PlayerId,
				Username: names[ps.Copy2PlayerId],
				Phrase:   ps.CopyPhrase2,
				Votes:    tally.Copy2,
				Points:   res.PointsCopy2,
				Payout:   res.PayoutCopy2,
			},
		},
	}, nil
}

// activityEvents lists the phraseset's timeline markers in order.
func activityEvents(ps *models.Phraseset) []gameapi.ActivityEvent {
	events := []gameapi.ActivityEvent{{Event: "created", At: ps.CreatedAt}}
	if ps.ThirdVoteAt > 0 {
		events = append(events, gameapi.ActivityEvent{Event: "third_vote", At: ps.ThirdVoteAt})
	}
	if ps.FifthVoteAt > 0 {
		events = append(events, gameapi.ActivityEvent{Event: "fifth_vote", At: ps.FifthVoteAt})
	}
	if ps.ClosesAt > 0 {
		events = append(events, gameapi.ActivityEvent{Event: "closing", At: ps.ClosesAt})
	}
	if ps.FinalizedAt > 0 {
		events = append(events, gameapi.ActivityEvent{Event: "finalized", At: ps.FinalizedAt})
	}
	return events
}

// markViewed stamps the first view of a finalized result.  Best effort;
// a failure only loses the timestamp.
func (s *Service) markViewed(phrasesetID int64, playerID int64, now int64) {
	_, err := s.dbMap.Exec("UPDATE ResultView SET FirstViewedAt = ? WHERE "+
		"PhrasesetId = ? AND PlayerId = ? AND FirstViewedAt = 0",
		now, phrasesetID, playerID)
	if err != nil {
		log.Warnf("Recording first view of phraseset %d for player %d failed: %v",
			phrasesetID, playerID, err)
	}
}

// loadContributorPhraseset fetches the phraseset and resolves the
// player's contributor role, rejecting outsiders.
func loadContributorPhraseset(db gorp.SqlExecutor, playerID int64, phrasesetID int64) (*models.Phraseset, string, error) {
	ps, err := models.GetPhrasesetByID(db, phrasesetID)
	if err == sql.ErrNoRows {
		return nil, "", errNotFound("phraseset")
	}
	if err != nil {
		return nil, "", err
	}
	role := ps.ContributorRole(playerID)
	if role == "" {
		return nil, "", NewError(gameapi.CodeNotAContributor,
			"you did not contribute to this phraseset")
	}
	return ps, role, nil
}

// PhrasesetDetails returns the contributor's view of a phraseset.  Other
// contributors' phrases, the votes and the scoring block appear only
// after finalization.
func (s *Service) PhrasesetDetails(ctx context.Context, playerID int64, phrasesetID int64) (*gameapi.PhrasesetDetailsResponse, error) {
	ps, role, err := loadContributorPhraseset(s.dbMap, playerID, phrasesetID)
	if err != nil {
		return nil, err
	}
	finalized := ps.Status == models.PhrasesetStatusFinalized

	names, err := models.GetUsernames(s.dbMap, ps.PrompterId, ps.Copy1PlayerId,
		ps.Copy2PlayerId)
	if err != nil {
		return nil, err
	}
	var contributors []gameapi.Contributor
	for _, c := range []struct {
		role     string
		playerID int64
	}{
		{models.ContributorOriginal, ps.PrompterId},
		{models.ContributorCopy1, ps.Copy1PlayerId},
		{models.ContributorCopy2, ps.Copy2PlayerId},
	} {
		entry := gameapi.Contributor{
			Role:     c.role,
			Username: names[c.playerID],
			IsYou:    c.playerID == playerID,
		}
		if finalized || entry.IsYou {
			entry.Phrase = rolePhrase(ps, c.role)
		}
		contributors = append(contributors, entry)
	}

	resp := &gameapi.PhrasesetDetailsResponse{
		PhrasesetId:  ps.Id,
		PromptText:   ps.PromptText,
		Status:       displayStatus(ps.Status),
		VoteCount:    ps.VoteCount,
		YourRole:     role,
		Contributors: contributors,
		Activity:     activityEvents(ps),
	}
	if !finalized {
		return resp, nil
	}

	votes, err := models.GetVotesForPhraseset(s.dbMap, ps.Id)
	if err != nil {
		return nil, err
	}
	voterIDs := make([]int64, 0, len(votes))
	for _, v := range votes {
		voterIDs = append(voterIDs, v.VoterId)
	}
	voterNames, err := models.GetUsernames(s.dbMap, voterIDs...)
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		resp.Votes = append(resp.Votes, gameapi.VoteDetail{
			Username:    voterNames[v.VoterId],
			VotedPhrase: v.VotedPhrase,
			Correct:     v.Correct == 1,
			VotedAt:     v.CreatedAt,
		})
	}
	resp.Results, err = s.buildResults(s.dbMap, ps, votes)
	if err != nil {
		return nil, err
	}
	view, err := models.GetResultView(s.dbMap, ps.Id, playerID)
	if err != nil {
		return nil, err
	}
	if view != nil {
		resp.YourPayout = view.PayoutAmount
		resp.PayoutClaimed = view.PayoutClaimed == 1
	}
	s.markViewed(ps.Id, playerID, time.Now().Unix())
	return resp, nil
}

// PhrasesetResults returns the contributor's scoring view of a finalized
// phraseset, claiming the payout on the first successful call.
func (s *Service) PhrasesetResults(ctx context.Context, playerID int64, phrasesetID int64) (*gameapi.ResultsResponse, error) {
	now := time.Now().Unix()
	var resp *gameapi.ResultsResponse
	err := s.withTx(func(tx *gorp.Transaction) error {
		ps, role, err := loadContributorPhraseset(tx, playerID, phrasesetID)
		if err != nil {
			return err
		}
		if ps.Status != models.PhrasesetStatusFinalized {
			return NewError(gameapi.CodeNotFound,
				"results are not available until the phraseset finalizes")
		}
		view, err := models.GetResultViewForUpdate(tx, phrasesetID, playerID)
		if err != nil {
			return err
		}
		if view == nil {
			return fmt.Errorf("phraseset %d has no result row for player %d",
				phrasesetID, playerID)
		}

		if view.PayoutClaimed == 0 {
			if view.PayoutAmount > 0 {
				_, err := ledger.Credit(tx, playerID, view.PayoutAmount,
					models.TxKindPrizePayout, models.PhrasesetRef(ps.Id), now)
				if err != nil {
					return err
				}
			}
			view.PayoutClaimed = 1
			view.PayoutClaimedAt = now
			log.Infof("Player %d collected %d from phraseset %d on first view",
				playerID, view.PayoutAmount, ps.Id)
		}
		if view.FirstViewedAt == 0 {
			view.FirstViewedAt = now
		}
		if _, err := tx.Update(view); err != nil {
			return err
		}

		votes, err := models.GetVotesForPhraseset(tx, ps.Id)
		if err != nil {
			return err
		}
		results, err := s.buildResults(tx, ps, votes)
		if err != nil {
			return err
		}
		resp = &gameapi.ResultsResponse{
			PhrasesetId:   ps.Id,
			PromptText:    ps.PromptText,
			Status:        displayStatus(ps.Status),
			Results:       results,
			YourRole:      role,
			YourPhrase:    rolePhrase(ps, role),
			YourPayout:    view.PayoutAmount,
			PayoutClaimed: true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ClaimPrize credits the contributor's recorded payout.  Claiming twice
// is a no-op that reports the originally recorded amount.
func (s *Service) ClaimPrize(ctx context.Context, playerID int64, phrasesetID int64) (*gameapi.ClaimResponse, error) {
	now := time.Now().Unix()
	var resp *gameapi.ClaimResponse
	err := s.withTx(func(tx *gorp.Transaction) error {
		ps, _, err := loadContributorPhraseset(tx, playerID, phrasesetID)
		if err != nil {
			return err
		}
		if ps.Status != models.PhrasesetStatusFinalized {
			return NewError(gameapi.CodeNotFound,
				"the prize is not claimable until the phraseset finalizes")
		}
		view, err := models.GetResultViewForUpdate(tx, phrasesetID, playerID)
		if err != nil {
			return err
		}
		if view == nil {
			return fmt.Errorf("phraseset %d has no result row for player %d",
				phrasesetID, playerID)
		}

		if view.PayoutClaimed == 1 {
			player, err := models.GetPlayerByID(tx, playerID)
			if err != nil {
				return err
			}
			resp = &gameapi.ClaimResponse{
				Success:        true,
				Amount:         view.PayoutAmount,
				AlreadyClaimed: true,
				NewBalance:     player.Balance,
			}
			return nil
		}

		balance := int64(0)
		if view.PayoutAmount > 0 {
			balance, err = ledger.Credit(tx, playerID, view.PayoutAmount,
				models.TxKindPrizePayout, models.PhrasesetRef(ps.Id), now)
			if err != nil {
				return err
			}
		} else {
			player, err := models.GetPlayerByID(tx, playerID)
			if err != nil {
				return err
			}
			balance = player.Balance
		}
		view.PayoutClaimed = 1
		view.PayoutClaimedAt = now
		if view.FirstViewedAt == 0 {
			view.FirstViewedAt = now
		}
		if _, err := tx.Update(view); err != nil {
			return err
		}
		resp = &gameapi.ClaimResponse{
			Success:    true,
			Amount:     view.PayoutAmount,
			NewBalance: balance,
		}
		log.Infof("Player %d claimed %d from phraseset %d", playerID,
			view.PayoutAmount, ps.Id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PendingResults lists the player's finalized contributions with an
// unclaimed payout, newest first.
func (s *Service) PendingResults(ctx context.Context, playerID int64) (*gameapi.PendingResultsResponse, error) {
	rows, err := models.GetPendingResults(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	resp := &gameapi.PendingResultsResponse{Results: []gameapi.PendingResult{}}
	for _, row := range rows {
		resp.Results = append(resp.Results, gameapi.PendingResult{
			PhrasesetId:  row.PhrasesetId,
			PromptText:   row.PromptText,
			YourRole:     row.Role,
			PayoutAmount: row.PayoutAmount,
			FinalizedAt:  row.FinalizedAt,
		})
	}
	return resp, nil
}

// UnclaimedResults is PendingResults plus the total amount waiting.
func (s *Service) UnclaimedResults(ctx context.Context, playerID int64) (*gameapi.UnclaimedResultsResponse, error) {
	pending, err := s.PendingResults(ctx, playerID)
	if err != nil {
		return nil, err
	}
	resp := &gameapi.UnclaimedResultsResponse{Results: pending.Results}
	for _, row := range pending.Results {
		resp.TotalUnclaimed += row.PayoutAmount
	}
	return resp, nil
}

// contributionItems builds the player's full contribution list: every
// phraseset they are part of plus submitted rounds still waiting for
// copies, newest first.
func (s *Service) contributionItems(playerID int64) ([]gameapi.PhrasesetListItem, error) {
	sets, err := models.GetPhrasesetsForContributor(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	views, err := models.GetResultViewsForPlayer(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}

	var items []gameapi.PhrasesetListItem
	for i := range sets {
		ps := &sets[i]
		item := gameapi.PhrasesetListItem{
			PhrasesetId: ps.Id,
			PromptText:  ps.PromptText,
			Status:      displayStatus(ps.Status),
			YourRole:    roleGroup(ps.ContributorRole(playerID)),
			VoteCount:   ps.VoteCount,
			CreatedAt:   ps.CreatedAt,
			FinalizedAt: ps.FinalizedAt,
		}
		if view, ok := views[ps.Id]; ok {
			item.YourPayout = view.PayoutAmount
			item.PayoutClaimed = view.PayoutClaimed == 1
		}
		items = append(items, item)
	}

	prompts, err := models.GetWaitingPromptRounds(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	for _, r := range prompts {
		status := statusWaitingCopies
		if r.CopyCount == 1 {
			status = statusWaitingCopy1
		}
		items = append(items, gameapi.PhrasesetListItem{
			PromptText: r.PromptText,
			Status:     status,
			YourRole:   "prompt",
			CreatedAt:  r.CreatedAt,
		})
	}

	copies, err := models.GetWaitingCopyRounds(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	for _, r := range copies {
		items = append(items, gameapi.PhrasesetListItem{
			Status:    statusWaitingCopy1,
			YourRole:  "copy",
			CreatedAt: r.CreatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt > items[j].CreatedAt
	})
	return items, nil
}

// matchesStatusFilter applies the list status filter, accepting either a
// bucket name or an exact status.
func matchesStatusFilter(status string, filter string) bool {
	switch filter {
	case "", "all":
		return true
	case "in_progress":
		return status == statusWaitingCopies || status == statusWaitingCopy1 ||
			status == "voting" || status == "closing"
	case "voting":
		return status == "voting" || status == "closing"
	}
	return status == filter
}

// ListPhrasesets returns a filtered page of the player's contributions.
func (s *Service) ListPhrasesets(ctx context.Context, playerID int64, roleFilter string, statusFilter string, limit int64, offset int64) (*gameapi.PlayerPhrasesetsResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.contributionItems(playerID)
	if err != nil {
		return nil, err
	}
	filtered := make([]gameapi.PhrasesetListItem, 0, len(items))
	for _, item := range items {
		if roleFilter != "" && roleFilter != "all" && item.YourRole != roleFilter {
			continue
		}
		if !matchesStatusFilter(item.Status, statusFilter) {
			continue
		}
		filtered = append(filtered, item)
	}

	total := int64(len(filtered))
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &gameapi.PlayerPhrasesetsResponse{
		Phrasesets: filtered[start:end],
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < total,
	}, nil
}

// PhrasesetSummary returns the dashboard counts for the player.
func (s *Service) PhrasesetSummary(ctx context.Context, playerID int64) (*gameapi.PhrasesetSummaryResponse, error) {
	items, err := s.contributionItems(playerID)
	if err != nil {
		return nil, err
	}
	resp := &gameapi.PhrasesetSummaryResponse{}
	for _, item := range items {
		bucket := &resp.InProgress
		if item.Status == models.PhrasesetStatusFinalized {
			bucket = &resp.Finalized
		}
		if item.YourRole == "prompt" {
			bucket.Prompts++
		} else {
			bucket.Copies++
		}
	}

	pending, err := models.GetPendingResults(s.dbMap, playerID)
	if err != nil {
		return nil, err
	}
	for _, row := range pending {
		resp.UnclaimedCount++
		resp.UnclaimedTotal += row.PayoutAmount
	}
	return resp, nil
}
