// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"github.com/go-gorp/gorp"
)

// Round roles.
const (
	RolePrompt = "prompt"
	RoleCopy   = "copy"
	RoleVote   = "vote"
)

// Round statuses.  Submitted is the terminal success status for all three
// roles, expired covers prompt and vote timeouts, abandoned covers copy
// timeouts.
const (
	RoundStatusActive    = "active"
	RoundStatusSubmitted = "submitted"
	RoundStatusExpired   = "expired"
	RoundStatusAbandoned = "abandoned"
)

// Round is one attempt by one player in one of the three roles.  Unused
// fields for a given role stay at their zero value.
//
// Prompt rounds carry PromptId, PromptText, CopyCount and QueuedAt; the
// latter two drive the copy queue after submission.  Copy rounds carry
// PromptRoundId, OriginalPhrase, SystemContribution and DiscountApplied.
// Vote rounds carry PhrasesetId and PhraseOrder, a comma separated
// permutation of 0,1,2 fixing the per voter display order.
type Round struct {
	Id                 int64 `db:"RoundId"`
	PlayerId           int64
	Role               string
	Status             string
	Cost               int64
	CreatedAt          int64
	ExpiresAt          int64
	SubmittedPhrase    string
	SubmittedAt        int64
	PromptId           int64
	PromptText         string
	CopyCount          int64
	QueuedAt           int64
	PromptRoundId      int64
	OriginalPhrase     string
	SystemContribution int64
	DiscountApplied    int64
	PhrasesetId        int64
	PhraseOrder        string
}

// GetRoundByID fetches a round by primary key.
func GetRoundByID(db gorp.SqlExecutor, id int64) (*Round, error) {
	var round Round
	err := db.SelectOne(&round, "SELECT * FROM Rounds WHERE RoundId = ?", id)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// GetRoundByIDForUpdate fetches a round by primary key with a row lock.
// Must be called inside a transaction.
func GetRoundByIDForUpdate(tx gorp.SqlExecutor, id int64) (*Round, error) {
	var round Round
	err := tx.SelectOne(&round, "SELECT * FROM Rounds WHERE RoundId = ? FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// GetActiveRoundForPlayer returns the player's active round, or nil when
// there is none.
func GetActiveRoundForPlayer(db gorp.SqlExecutor, playerID int64) (*Round, error) {
	var rounds []Round
	_, err := db.Select(&rounds, "SELECT * FROM Rounds WHERE PlayerId = ? AND Status = ? "+
		"ORDER BY RoundId DESC LIMIT 1", playerID, RoundStatusActive)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, nil
	}
	return &rounds[0], nil
}

// GetExpiredRounds returns active rounds whose grace window has fully
// elapsed at the given time, oldest first.
func GetExpiredRounds(db gorp.SqlExecutor, now int64, graceBand int64, limit int64) ([]Round, error) {
	var rounds []Round
	_, err := db.Select(&rounds, "SELECT * FROM Rounds WHERE Status = ? AND "+
		"ExpiresAt + ? < ? ORDER BY ExpiresAt LIMIT ?",
		RoundStatusActive, graceBand, now, limit)
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

// CountActiveVoteRoundsInGrace counts vote rounds on the phraseset that are
// still active and inside their grace window.  A non zero count blocks
// closure of a closing phraseset.
func CountActiveVoteRoundsInGrace(db gorp.SqlExecutor, phrasesetID int64, now int64, graceBand int64) (int64, error) {
	return db.SelectInt("SELECT COUNT(*) FROM Rounds WHERE PhrasesetId = ? AND "+
		"Role = ? AND Status = ? AND ExpiresAt + ? > ?",
		phrasesetID, RoleVote, RoundStatusActive, graceBand, now)
}

// CountActiveCopyRoundsForPrompt counts active copy rounds claimed against
// the prompt round that are still inside their grace window.  A non zero
// count keeps the prompt out of the copy queue.
func CountActiveCopyRoundsForPrompt(db gorp.SqlExecutor, promptRoundID int64, now int64, graceBand int64) (int64, error) {
	return db.SelectInt("SELECT COUNT(*) FROM Rounds WHERE PromptRoundId = ? AND "+
		"Role = ? AND Status = ? AND ExpiresAt + ? > ?",
		promptRoundID, RoleCopy, RoundStatusActive, graceBand, now)
}

// GetSubmittedCopyRounds returns the successful copy rounds for a prompt
// round, oldest first.
func GetSubmittedCopyRounds(db gorp.SqlExecutor, promptRoundID int64) ([]Round, error) {
	var rounds []Round
	_, err := db.Select(&rounds, "SELECT * FROM Rounds WHERE PromptRoundId = ? AND "+
		"Role = ? AND Status = ? ORDER BY SubmittedAt, RoundId",
		promptRoundID, RoleCopy, RoundStatusSubmitted)
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

// GetWaitingPromptRounds returns the player's submitted prompt rounds
// that have not become a phraseset yet, newest first.
func GetWaitingPromptRounds(db gorp.SqlExecutor, playerID int64) ([]Round, error) {
	var rounds []Round
	_, err := db.Select(&rounds, "SELECT * FROM Rounds WHERE PlayerId = ? AND "+
		"Role = ? AND Status = ? AND NOT EXISTS (SELECT 1 FROM Phrasesets WHERE "+
		"Phrasesets.PromptRoundId = Rounds.RoundId) "+
		"ORDER BY CreatedAt DESC, RoundId DESC",
		playerID, RolePrompt, RoundStatusSubmitted)
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

// GetWaitingCopyRounds returns the player's submitted copy rounds whose
// prompt has not become a phraseset yet, newest first.
func GetWaitingCopyRounds(db gorp.SqlExecutor, playerID int64) ([]Round, error) {
	var rounds []Round
	_, err := db.Select(&rounds, "SELECT * FROM Rounds WHERE PlayerId = ? AND "+
		"Role = ? AND Status = ? AND NOT EXISTS (SELECT 1 FROM Phrasesets WHERE "+
		"Phrasesets.PromptRoundId = Rounds.PromptRoundId) "+
		"ORDER BY CreatedAt DESC, RoundId DESC",
		playerID, RoleCopy, RoundStatusSubmitted)
	if err != nil {
		return nil, err
	}
	return rounds, nil
}
