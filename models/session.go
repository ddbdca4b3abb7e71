// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"github.com/go-gorp/gorp"
)

// Session is one refresh token record.  TokenHash is the hex encoded
// SHA-256 of the opaque token id; the token itself is never stored.
// RevokedAt is zero while the session is live.  Data holds gob encoded
// session values.
type Session struct {
	Id        int64 `db:"SessionId"`
	TokenHash string
	PlayerId  int64
	Data      []byte
	CreatedAt int64
	ExpiresAt int64
	RevokedAt int64
}

// GetSessionByTokenHash fetches a session row by token hash.  Returns
// sql.ErrNoRows when no such session exists.
func GetSessionByTokenHash(db gorp.SqlExecutor, tokenHash string) (*Session, error) {
	var session Session
	err := db.SelectOne(&session, "SELECT * FROM Session WHERE TokenHash = ?", tokenHash)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DestroySessionsForPlayerID revokes every live session belonging to the
// player.
func DestroySessionsForPlayerID(db gorp.SqlExecutor, playerID int64, now int64) error {
	_, err := db.Exec("UPDATE Session SET RevokedAt = ? WHERE PlayerId = ? AND RevokedAt = 0",
		now, playerID)
	return err
}

// DestroyExpiredSessions deletes sessions whose expiry has passed.
func DestroyExpiredSessions(db gorp.SqlExecutor, now int64) (int64, error) {
	res, err := db.Exec("DELETE FROM Session WHERE ExpiresAt < ?", now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
