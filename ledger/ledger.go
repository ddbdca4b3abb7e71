// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger posts balance movements.  Every change to a player
// balance goes through Apply inside the caller's database transaction, so
// the Transactions table and the Players.Balance column always move
// together.
package ledger

import (
	"errors"

	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/models"
)

// ErrInsufficientBalance is returned when a debit would take the balance
// below zero.  The transaction must be rolled back by the caller.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Entry describes one balance movement.  Amount is signed: positive
// credits, negative debits.
type Entry struct {
	PlayerId    int64
	Amount      int64
	Kind        string
	ReferenceId string
}

// Apply posts the entry: locks the player row, rejects debits that would
// go negative, inserts the Transaction row with its BalanceAfter snapshot,
// and updates the balance.  Must run inside a transaction.  Returns the
// new balance.
func Apply(tx gorp.SqlExecutor, entry Entry, now int64) (int64, error) {
	player, err := models.GetPlayerByIDForUpdate(tx, entry.PlayerId)
	if err != nil {
		return 0, err
	}
	newBalance := player.Balance + entry.Amount
	if newBalance < 0 {
		return 0, ErrInsufficientBalance
	}

	txn := &models.Transaction{
		PlayerId:     entry.PlayerId,
		Amount:       entry.Amount,
		Kind:         entry.Kind,
		ReferenceId:  entry.ReferenceId,
		BalanceAfter: newBalance,
		CreatedAt:    now,
	}
	if err := tx.Insert(txn); err != nil {
		return 0, err
	}
	if _, err := tx.Exec("UPDATE Players SET Balance = ? WHERE PlayerId = ?",
		newBalance, entry.PlayerId); err != nil {
		return 0, err
	}

	log.Debugf("Player %d: %s %+d -> balance %d (%s)", entry.PlayerId,
		entry.Kind, entry.Amount, newBalance, entry.ReferenceId)
	return newBalance, nil
}

// Credit posts a positive movement of amount.
func Credit(tx gorp.SqlExecutor, playerID int64, amount int64, kind string, referenceID string, now int64) (int64, error) {
	return Apply(tx, Entry{
		PlayerId:    playerID,
		Amount:      amount,
		Kind:        kind,
		ReferenceId: referenceID,
	}, now)
}

// Debit posts a negative movement of amount.
func Debit(tx gorp.SqlExecutor, playerID int64, amount int64, kind string, referenceID string, now int64) (int64, error) {
	return Apply(tx, Entry{
		PlayerId:    playerID,
		Amount:      -amount,
		Kind:        kind,
		ReferenceId: referenceID,
	}, now)
}

// ApplyHouse records a house side entry with no player balance attached.
// Used for withheld penalties and system contribution bookkeeping.
func ApplyHouse(tx gorp.SqlExecutor, amount int64, kind string, referenceID string, now int64) error {
	txn := &models.Transaction{
		PlayerId:    0,
		Amount:      amount,
		Kind:        kind,
		ReferenceId: referenceID,
		CreatedAt:   now,
	}
	if err := tx.Insert(txn); err != nil {
		return err
	}
	log.Debugf("House: %s %+d (%s)", kind, amount, referenceID)
	return nil
}
