// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"database/sql"
	"strings"

	"github.com/go-gorp/gorp"
	"golang.org/x/crypto/bcrypt"
)

// Player is one registered account.  Balance is maintained by the ledger
// and must only change together with a Transaction row.  ActiveRoundId is
// zero when the player has no active round.  LastLoginDate is a UTC date
// in YYYY-MM-DD form, set at registration and advanced by daily bonus
// claims; the authoritative bonus dedup is the DailyBonus table.
type Player struct {
	Id                int64 `db:"PlayerId"`
	ApiKey            string
	Username          string
	UsernameCanonical string
	Email             string
	PasswordHash      []byte
	Balance           int64
	LastLoginDate     string
	ActiveRoundId     int64
	CreatedAt         int64
}

// HashPassword sets PasswordHash from the cleartext password.
func (player *Player) HashPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	player.PasswordHash = hash
	return nil
}

// CheckPassword compares the cleartext password against PasswordHash.
func (player *Player) CheckPassword(password string) bool {
	if len(player.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(player.PasswordHash, []byte(password)) == nil
}

// CanonicalUsername normalizes a username for uniqueness checks.
func CanonicalUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// GetPlayerByID fetches a player by primary key.  Returns sql.ErrNoRows
// when the id is unknown.
func GetPlayerByID(db gorp.SqlExecutor, id int64) (*Player, error) {
	var player Player
	err := db.SelectOne(&player, "SELECT * FROM Players WHERE PlayerId = ?", id)
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// GetPlayerByIDForUpdate fetches a player by primary key with a row lock.
// Must be called inside a transaction.
func GetPlayerByIDForUpdate(tx gorp.SqlExecutor, id int64) (*Player, error) {
	var player Player
	err := tx.SelectOne(&player, "SELECT * FROM Players WHERE PlayerId = ? FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// GetPlayerByUsername fetches a player by username, case insensitively.
func GetPlayerByUsername(db gorp.SqlExecutor, username string) (*Player, error) {
	var player Player
	err := db.SelectOne(&player, "SELECT * FROM Players WHERE UsernameCanonical = ?",
		CanonicalUsername(username))
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// GetPlayerByAPIKey fetches a player by api key.
func GetPlayerByAPIKey(db gorp.SqlExecutor, apiKey string) (*Player, error) {
	var player Player
	err := db.SelectOne(&player, "SELECT * FROM Players WHERE ApiKey = ?", apiKey)
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// SetActiveRound points the player's active round at roundID, or clears
// it when roundID is zero.  A targeted update so a stale struct never
// clobbers the ledger maintained balance.
func SetActiveRound(db gorp.SqlExecutor, playerID int64, roundID int64) error {
	_, err := db.Exec("UPDATE Players SET ActiveRoundId = ? WHERE PlayerId = ?",
		roundID, playerID)
	return err
}

// SetLastLoginDate records the player's latest UTC login date.
func SetLastLoginDate(db gorp.SqlExecutor, playerID int64, date string) error {
	_, err := db.Exec("UPDATE Players SET LastLoginDate = ? WHERE PlayerId = ?",
		date, playerID)
	return err
}

// SetAPIKey swaps in a freshly generated api key.
func SetAPIKey(db gorp.SqlExecutor, playerID int64, apiKey string) error {
	_, err := db.Exec("UPDATE Players SET ApiKey = ? WHERE PlayerId = ?",
		apiKey, playerID)
	return err
}

// UsernameExists reports whether any player has claimed the username.
func UsernameExists(db gorp.SqlExecutor, username string) (bool, error) {
	n, err := db.SelectInt("SELECT COUNT(*) FROM Players WHERE UsernameCanonical = ?",
		CanonicalUsername(username))
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return n > 0, nil
}

// GetUsernames returns the username for each given player id.  Ids with
// no matching player are absent from the map.
func GetUsernames(db gorp.SqlExecutor, ids ...int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	var players []Player
	_, err := db.Select(&players, "SELECT * FROM Players WHERE PlayerId IN ("+
		strings.Join(placeholders, ",")+")", args...)
	if err != nil {
		return nil, err
	}
	for _, player := range players {
		names[player.Id] = player.Username
	}
	return names, nil
}
