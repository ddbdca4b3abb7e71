// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import "fmt"

// Transaction kinds.  Player rows change the player balance by Amount;
// rows with PlayerId 0 are house side bookkeeping and touch no balance.
const (
	TxKindPromptEntry        = "prompt_entry"
	TxKindCopyEntry          = "copy_entry"
	TxKindVoteEntry          = "vote_entry"
	TxKindVotePayout         = "vote_payout"
	TxKindPrizePayout        = "prize_payout"
	TxKindRefund             = "refund"
	TxKindPenalty            = "penalty"
	TxKindDailyBonus         = "daily_bonus"
	TxKindSystemContribution = "system_contribution"
)

// Reference id builders.  ReferenceId ties a transaction to the entity
// that caused it.
func RoundRef(roundID int64) string         { return fmt.Sprint("round:", roundID) }
func PhrasesetRef(phrasesetID int64) string { return fmt.Sprint("phraseset:", phrasesetID) }
func VoteRef(voteID int64) string           { return fmt.Sprint("vote:", voteID) }
func BonusRef(date string) string           { return fmt.Sprint("bonus:", date) }

// Transaction is one ledger entry.  BalanceAfter snapshots the player
// balance after applying Amount, and is zero on house rows.
type Transaction struct {
	Id           int64 `db:"TransactionId"`
	PlayerId     int64
	Amount       int64
	Kind         string
	ReferenceId  string
	BalanceAfter int64
	CreatedAt    int64
}

// DailyBonus records one claimed bonus.  The unique (PlayerId, Date) index
// makes claims idempotent per UTC day.
type DailyBonus struct {
	Id        int64 `db:"DailyBonusId"`
	PlayerId  int64
	Date      string
	Amount    int64
	CreatedAt int64
}
