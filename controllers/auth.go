// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/zenazn/goji/web"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/helpers"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/system"
)

// Register handles POST /player.  The body is optional: without one the
// server generates a username and the account is reachable only through
// its api key until credentials are claimed.
func (controller *MainController) Register(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	var req gameapi.RegisterRequest
	if apiErr := decodeJSON(r, gameapi.CodeInvalidCredentials, &req); apiErr != nil {
		return nil, 0, apiErr
	}

	resp, err := controller.gameService.CreatePlayer(r.Context(), req.Username,
		req.Email, req.Password)
	if err != nil {
		return nil, 0, translateError(err)
	}
	log.Infof("registered player %d (%s) from %s", resp.PlayerId,
		resp.Username, system.ClientIP(r, controller.realIPHeader))
	return resp, http.StatusCreated, nil
}

// Login handles POST /auth/login.  A successful credential login revokes
// the player's other refresh sessions before issuing fresh tokens, so a
// lost refresh token dies the moment its owner logs back in.
func (controller *MainController) Login(c web.C, w http.ResponseWriter, r *http.Request) {
	var req gameapi.LoginRequest
	if apiErr := decodeJSON(r, gameapi.CodeInvalidCredentials, &req); apiErr != nil {
		system.WriteError(w, apiErr)
		return
	}

	remoteIP := system.ClientIP(r, controller.realIPHeader)
	dbMap := controller.GetDbMap(c)

	player, err := helpers.Login(dbMap, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, helpers.ErrBadCredentials) {
			log.Infof("login failed for %q from %s", req.Username, remoteIP)
			system.WriteError(w, system.NewError(http.StatusUnauthorized,
				gameapi.CodeInvalidCredentials, "wrong username or password"))
			return
		}
		system.WriteError(w, translateError(err))
		return
	}

	if err := models.DestroySessionsForPlayerID(dbMap, player.Id,
		time.Now().Unix()); err != nil {
		log.Warnf("could not revoke prior sessions for player %d: %v",
			player.Id, err)
	}

	log.Infof("login from %s, player %d", remoteIP, player.Id)
	controller.issueTokens(w, r, player.Id, player.Username)
}

// Refresh handles POST /auth/refresh.  The refresh token arrives either in
// the body or in the refresh cookie; either way it is rotated, so the
// presented token is spent by this request.
func (controller *MainController) Refresh(c web.C, w http.ResponseWriter, r *http.Request) {
	var req gameapi.RefreshRequest
	if apiErr := decodeJSON(r, gameapi.CodeInvalidCredentials, &req); apiErr != nil {
		system.WriteError(w, apiErr)
		return
	}

	var session *sessions.Session
	var err error
	if req.RefreshToken != "" {
		session, err = controller.store.FromValue(req.RefreshToken)
	} else {
		session, err = controller.store.New(r, system.RefreshCookieName)
		if err == nil && session.IsNew {
			err = system.ErrTokenNotFound
		}
	}
	if err != nil {
		system.WriteError(w, refreshError(err))
		return
	}

	playerID := system.PlayerIDFromSession(session)
	if playerID < 1 {
		system.WriteError(w, system.NewError(http.StatusUnauthorized,
			gameapi.CodeInvalidCredentials, "refresh token not recognized"))
		return
	}
	player, err := models.GetPlayerByID(controller.GetDbMap(c), playerID)
	if err != nil {
		log.Warnf("refresh for missing player %d: %v", playerID, err)
		system.WriteError(w, system.NewError(http.StatusUnauthorized,
			gameapi.CodeInvalidCredentials, "refresh token not recognized"))
		return
	}

	if err := controller.store.Revoke(session); err != nil {
		log.Errorf("could not revoke rotated session: %v", err)
		system.WriteError(w, system.NewError(http.StatusServiceUnavailable,
			gameapi.CodeDependencyUnavailable, "temporarily unable to refresh"))
		return
	}

	controller.issueTokens(w, r, player.Id, player.Username)
}

// Logout handles POST /auth/logout.  Revocation is best effort and the
// response is 204 regardless, so logging out twice is harmless.
func (controller *MainController) Logout(c web.C, w http.ResponseWriter, r *http.Request) {
	var req gameapi.RefreshRequest
	// a malformed body still clears the cookie
	if apiErr := decodeJSON(r, gameapi.CodeInvalidCredentials, &req); apiErr != nil {
		log.Debugf("logout body ignored: %s", apiErr.Detail)
	}

	var session *sessions.Session
	var err error
	if req.RefreshToken != "" {
		session, err = controller.store.FromValue(req.RefreshToken)
	} else {
		session, err = controller.store.New(r, system.RefreshCookieName)
	}
	if err != nil &&
		!errors.Is(err, system.ErrTokenNotFound) &&
		!errors.Is(err, system.ErrTokenExpired) &&
		!errors.Is(err, system.ErrTokenRevoked) {
		log.Warnf("logout session load: %v", err)
	}

	if session != nil {
		session.Options.MaxAge = -1
		if err := controller.store.Save(r, w, session); err != nil {
			log.Warnf("logout revoke: %v", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// issueTokens mints a fresh access token and refresh session for the
// player and writes the token response.  The raw refresh token travels
// both in the securecookie and in the body, for clients without a cookie
// jar.
func (controller *MainController) issueTokens(w http.ResponseWriter, r *http.Request, playerID int64, username string) {
	access, expiresIn, err := helpers.CreateAccessToken(controller.APISecret,
		playerID, username)
	if err != nil {
		log.Errorf("could not sign access token: %v", err)
		system.WriteError(w, system.NewError(http.StatusServiceUnavailable,
			gameapi.CodeDependencyUnavailable, "temporarily unable to log in"))
		return
	}

	session := controller.store.NewSessionForPlayer(playerID)
	if err := controller.store.Save(r, w, session); err != nil {
		log.Errorf("could not save refresh session: %v", err)
		system.WriteError(w, system.NewError(http.StatusServiceUnavailable,
			gameapi.CodeDependencyUnavailable, "temporarily unable to log in"))
		return
	}

	system.WriteJSON(w, http.StatusOK, &gameapi.TokenResponse{
		AccessToken:  access,
		RefreshToken: session.ID,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		PlayerId:     playerID,
		Username:     username,
	})
}

// refreshError maps a refresh token load failure onto its wire error.
func refreshError(err error) *system.Error {
	switch {
	case errors.Is(err, system.ErrTokenExpired):
		return system.NewError(http.StatusUnauthorized,
			gameapi.CodeTokenExpired, "refresh token expired")
	case errors.Is(err, system.ErrTokenRevoked):
		return system.NewError(http.StatusUnauthorized,
			gameapi.CodeTokenRevoked, "refresh token revoked")
	case errors.Is(err, system.ErrTokenNotFound):
		return system.NewError(http.StatusUnauthorized,
			gameapi.CodeInvalidCredentials, "refresh token not recognized")
	}
	log.Errorf("refresh token load: %v", err)
	return system.NewError(http.StatusServiceUnavailable,
		gameapi.CodeDependencyUnavailable, "temporarily unable to refresh")
}
