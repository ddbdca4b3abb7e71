// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package controllers

import (
	"net/http"
	"strconv"

	"github.com/zenazn/goji/web"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/system"
)

// Balance handles GET /player/balance.
func (controller *MainController) Balance(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.Balance(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// ClaimDailyBonus handles POST /player/claim-daily-bonus.
func (controller *MainController) ClaimDailyBonus(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.ClaimDailyBonus(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// CurrentRound handles GET /player/current-round.  Expired rounds are
// reaped on the way, so the response reflects the timeout the client
// slept through.
func (controller *MainController) CurrentRound(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.CurrentRound(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// PendingResults handles GET /player/pending-results.
func (controller *MainController) PendingResults(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.PendingResults(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// UnclaimedResults handles GET /player/unclaimed-results.
func (controller *MainController) UnclaimedResults(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.UnclaimedResults(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// Phrasesets handles GET /player/phrasesets.  Filters: role (all, prompt,
// copy), status (all, in_progress, voting, or an exact status), limit and
// offset.  Unparseable numbers fall back to the defaults.
func (controller *MainController) Phrasesets(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}

	q := r.URL.Query()
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)
	offset, _ := strconv.ParseInt(q.Get("offset"), 10, 64)

	resp, err := controller.gameService.ListPhrasesets(r.Context(), playerID,
		q.Get("role"), q.Get("status"), limit, offset)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// PhrasesetSummary handles GET /player/phrasesets/summary.
func (controller *MainController) PhrasesetSummary(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.PhrasesetSummary(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// RotateKey handles POST /player/rotate-key.  The prior key stops working
// the moment the response is written.
func (controller *MainController) RotateKey(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.RotateKey(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	log.Infof("player %d rotated api key from %s", playerID,
		system.ClientIP(r, controller.realIPHeader))
	return resp, 0, nil
}

// LegacyLogin handles POST /player/login, the passwordless username to
// api key recovery kept for first generation clients.
func (controller *MainController) LegacyLogin(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	var req gameapi.LegacyLoginRequest
	if apiErr := decodeJSON(r, gameapi.CodeUsernameNotFound, &req); apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.LegacyLogin(r.Context(), req.Username)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, http.StatusOK, nil
}
