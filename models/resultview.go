// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"github.com/go-gorp/gorp"
)

// ResultView tracks, per contributor, whether the outcome of a finalized
// phraseset has been seen and whether its payout has been claimed.  Rows
// are created during finalization with PayoutClaimed 0; the prize credit
// happens at claim time.
type ResultView struct {
	Id              int64 `db:"ResultViewId"`
	PhrasesetId     int64
	PlayerId        int64
	Role            string
	PayoutAmount    int64
	PayoutClaimed   int64
	FirstViewedAt   int64
	PayoutClaimedAt int64
}

// GetResultView returns the contributor's result row for the phraseset, or
// nil when none exists.
func GetResultView(db gorp.SqlExecutor, phrasesetID int64, playerID int64) (*ResultView, error) {
	var views []ResultView
	_, err := db.Select(&views, "SELECT * FROM ResultView WHERE PhrasesetId = ? AND PlayerId = ?",
		phrasesetID, playerID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// GetResultViewForUpdate returns the contributor's result row with a row
// lock.  Must be called inside a transaction.
func GetResultViewForUpdate(tx gorp.SqlExecutor, phrasesetID int64, playerID int64) (*ResultView, error) {
	var views []ResultView
	_, err := tx.Select(&views, "SELECT * FROM ResultView WHERE PhrasesetId = ? AND PlayerId = ? FOR UPDATE",
		phrasesetID, playerID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// PendingResultRow joins an unclaimed result with its phraseset header.
type PendingResultRow struct {
	PhrasesetId  int64
	Role         string
	PayoutAmount int64
	PromptText   string
	FinalizedAt  int64
}

// GetPendingResults returns the player's unclaimed results, most recently
// finalized first.
func GetPendingResults(db gorp.SqlExecutor, playerID int64) ([]PendingResultRow, error) {
	var rows []PendingResultRow
	_, err := db.Select(&rows, "SELECT ResultView.PhrasesetId AS PhrasesetId, "+
		"ResultView.Role AS Role, ResultView.PayoutAmount AS PayoutAmount, "+
		"Phrasesets.PromptText AS PromptText, Phrasesets.FinalizedAt AS FinalizedAt "+
		"FROM ResultView "+
		"INNER JOIN Phrasesets ON Phrasesets.PhrasesetId = ResultView.PhrasesetId "+
		"WHERE ResultView.PlayerId = ? AND ResultView.PayoutClaimed = 0 "+
		"ORDER BY Phrasesets.FinalizedAt DESC", playerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetResultViewsForPlayer returns all of the player's result rows keyed
// by phraseset.
func GetResultViewsForPlayer(db gorp.SqlExecutor, playerID int64) (map[int64]ResultView, error) {
	var views []ResultView
	_, err := db.Select(&views, "SELECT * FROM ResultView WHERE PlayerId = ?", playerID)
	if err != nil {
		return nil, err
	}
	byPhraseset := make(map[int64]ResultView, len(views))
	for _, view := range views {
		byPhraseset[view.PhrasesetId] = view
	}
	return byPhraseset, nil
}
