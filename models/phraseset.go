// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"github.com/go-gorp/gorp"
)

// Phraseset statuses.
const (
	PhrasesetStatusOpen      = "open"
	PhrasesetStatusClosing   = "closing"
	PhrasesetStatusClosed    = "closed"
	PhrasesetStatusFinalized = "finalized"
)

// Contributor roles within a phraseset.
const (
	ContributorOriginal = "original"
	ContributorCopy1    = "copy1"
	ContributorCopy2    = "copy2"
)

// Phraseset is one prompt plus its original phrase and two copies, voted
// on by non contributors.  ThirdVoteAt and FifthVoteAt are set exactly
// when the third and fifth votes are accepted and are zero before that.
// ClosesAt is zero until the set enters closing.  TotalPool is the base
// prize pool plus all system contributions.
type Phraseset struct {
	Id                 int64 `db:"PhrasesetId"`
	PromptRoundId      int64
	CopyRound1Id       int64
	CopyRound2Id       int64
	PrompterId         int64
	Copy1PlayerId      int64
	Copy2PlayerId      int64
	PromptText         string
	OriginalPhrase     string
	CopyPhrase1        string
	CopyPhrase2        string
	Status             string
	VoteCount          int64
	ThirdVoteAt        int64
	FifthVoteAt        int64
	ClosesAt           int64
	TotalPool          int64
	SystemContribution int64
	CreatedAt          int64
	FinalizedAt        int64
}

// Phrases returns the three phrases in stored order: original, copy1,
// copy2.
func (ps *Phraseset) Phrases() [3]string {
	return [3]string{ps.OriginalPhrase, ps.CopyPhrase1, ps.CopyPhrase2}
}

// IsContributor reports whether the player authored any of the three
// phrases.
func (ps *Phraseset) IsContributor(playerID int64) bool {
	return playerID == ps.PrompterId || playerID == ps.Copy1PlayerId ||
		playerID == ps.Copy2PlayerId
}

// ContributorRole returns the player's role within the set, or an empty
// string for non contributors.
func (ps *Phraseset) ContributorRole(playerID int64) string {
	switch playerID {
	case ps.PrompterId:
		return ContributorOriginal
	case ps.Copy1PlayerId:
		return ContributorCopy1
	case ps.Copy2PlayerId:
		return ContributorCopy2
	}
	return ""
}

// Vote is one voter's pick on a phraseset.  VotedIndex is the position of
// the pick within the voter's shuffled display order.  Correct is 1 when
// the voter identified the original phrase.
type Vote struct {
	Id          int64 `db:"VoteId"`
	PhrasesetId int64
	VoterId     int64
	VotedIndex  int64
	VotedPhrase string
	Correct     int64
	Payout      int64
	CreatedAt   int64
}

// GetPhrasesetByID fetches a phraseset by primary key.
func GetPhrasesetByID(db gorp.SqlExecutor, id int64) (*Phraseset, error) {
	var ps Phraseset
	err := db.SelectOne(&ps, "SELECT * FROM Phrasesets WHERE PhrasesetId = ?", id)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// GetPhrasesetByIDForUpdate fetches a phraseset by primary key with a row
// lock.  Must be called inside a transaction.
func GetPhrasesetByIDForUpdate(tx gorp.SqlExecutor, id int64) (*Phraseset, error) {
	var ps Phraseset
	err := tx.SelectOne(&ps, "SELECT * FROM Phrasesets WHERE PhrasesetId = ? FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// CountOutstandingPrompts counts phrasesets still collecting votes whose
// prompt was contributed by the player.
func CountOutstandingPrompts(db gorp.SqlExecutor, playerID int64) (int64, error) {
	return db.SelectInt("SELECT COUNT(*) FROM Phrasesets WHERE PrompterId = ? AND "+
		"Status IN (?, ?)", playerID, PhrasesetStatusOpen, PhrasesetStatusClosing)
}

// GetVote returns the player's vote on the phraseset, or nil when the
// player has not voted.
func GetVote(db gorp.SqlExecutor, phrasesetID int64, voterID int64) (*Vote, error) {
	var votes []Vote
	_, err := db.Select(&votes, "SELECT * FROM Votes WHERE PhrasesetId = ? AND VoterId = ?",
		phrasesetID, voterID)
	if err != nil {
		return nil, err
	}
	if len(votes) == 0 {
		return nil, nil
	}
	return &votes[0], nil
}

// GetVotesForPhraseset returns all votes on the phraseset in acceptance
// order.
func GetVotesForPhraseset(db gorp.SqlExecutor, phrasesetID int64) ([]Vote, error) {
	var votes []Vote
	_, err := db.Select(&votes, "SELECT * FROM Votes WHERE PhrasesetId = ? "+
		"ORDER BY CreatedAt, VoteId", phrasesetID)
	if err != nil {
		return nil, err
	}
	return votes, nil
}

// GetPhrasesetsForContributor returns every phraseset the player
// contributed to, newest first.
func GetPhrasesetsForContributor(db gorp.SqlExecutor, playerID int64) ([]Phraseset, error) {
	var sets []Phraseset
	_, err := db.Select(&sets, "SELECT * FROM Phrasesets WHERE PrompterId = ? OR "+
		"Copy1PlayerId = ? OR Copy2PlayerId = ? ORDER BY CreatedAt DESC, PhrasesetId DESC",
		playerID, playerID, playerID)
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// GetClosablePhrasesets returns closing phrasesets whose deadline has
// passed, oldest deadline first.  Grace holds are checked separately by
// the caller.
func GetClosablePhrasesets(db gorp.SqlExecutor, now int64, limit int64) ([]Phraseset, error) {
	var sets []Phraseset
	_, err := db.Select(&sets, "SELECT * FROM Phrasesets WHERE Status = ? AND "+
		"ClosesAt < ? ORDER BY ClosesAt LIMIT ?", PhrasesetStatusClosing, now, limit)
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// GetStalledOpenPhrasesets returns open phrasesets whose third vote
// happened more than the stall window ago.
func GetStalledOpenPhrasesets(db gorp.SqlExecutor, now int64, stallWindow int64, limit int64) ([]Phraseset, error) {
	var sets []Phraseset
	_, err := db.Select(&sets, "SELECT * FROM Phrasesets WHERE Status = ? AND "+
		"ThirdVoteAt > 0 AND ThirdVoteAt + ? < ? ORDER BY ThirdVoteAt LIMIT ?",
		PhrasesetStatusOpen, stallWindow, now, limit)
	if err != nil {
		return nil, err
	}
	return sets, nil
}
