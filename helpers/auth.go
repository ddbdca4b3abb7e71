// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package helpers

import (
	"database/sql"
	"errors"

	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/models"
)

// ErrBadCredentials is returned by Login for unknown usernames and wrong
// passwords alike, so responses cannot be used to probe which usernames
// exist.
var ErrBadCredentials = errors.New("wrong username or password")

// Login validates the username and password combination and returns the
// matching player.  Players created without credentials cannot log in
// this way until they claim a password.
func Login(dbMap *gorp.DbMap, username string, password string) (*models.Player, error) {
	player, err := models.GetPlayerByUsername(dbMap, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !player.CheckPassword(password) {
		return nil, ErrBadCredentials
	}
	return player, nil
}
