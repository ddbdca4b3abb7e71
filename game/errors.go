// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package game

import (
	"fmt"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/phrase"
)

// Error is a rule violation reported to the client.  Code is one of the
// gameapi error codes; RoundId is set only on already_in_round so the
// client can resume the round it forgot about.
type Error struct {
	Code    string
	Detail  string
	RoundId int64
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return e.Code + ": " + e.Detail
}

// NewError returns an Error with the given code and detail.
func NewError(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// errAlreadyInRound reports the round the player is already in.
func errAlreadyInRound(roundID int64) *Error {
	return &Error{
		Code:    gameapi.CodeAlreadyInRound,
		Detail:  "finish your current round first",
		RoundId: roundID,
	}
}

func errInsufficientBalance(need int64, have int64) *Error {
	return NewError(gameapi.CodeInsufficientBalance,
		"need %d, balance is %d", need, have)
}

func errNotFound(what string) *Error {
	return NewError(gameapi.CodeNotFound, "%s not found", what)
}

// phraseError converts a validation failure into its client Error.
func phraseError(err *phrase.Error) *Error {
	return NewError(err.Code(), "%s", err.Detail)
}
