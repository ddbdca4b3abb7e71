// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package controllers

import (
	"net/http"

	"github.com/zenazn/goji/web"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/system"
)

// RoundsAvailable handles GET /rounds/available.
func (controller *MainController) RoundsAvailable(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.Availability(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// StartPrompt handles POST /rounds/prompt.
func (controller *MainController) StartPrompt(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.StartPromptRound(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// StartCopy handles POST /rounds/copy.
func (controller *MainController) StartCopy(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.StartCopyRound(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// StartVote handles POST /rounds/vote.
func (controller *MainController) StartVote(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.StartVoteRound(r.Context(), playerID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// SubmitPhrase handles POST /rounds/:id/submit for prompt and copy
// rounds.  Validation failures leave the round active, so the client may
// fix the phrase and resubmit inside the window.
func (controller *MainController) SubmitPhrase(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	roundID, apiErr := urlID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	var req gameapi.SubmitPhraseRequest
	if apiErr := decodeJSON(r, gameapi.CodeInvalidPhrase, &req); apiErr != nil {
		return nil, 0, apiErr
	}

	resp, err := controller.gameService.SubmitPhrase(r.Context(), playerID,
		roundID, req.Phrase)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// Round handles GET /rounds/:id.  Only the round's owner sees it; anyone
// else gets the same not_found an unknown id would.
func (controller *MainController) Round(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	roundID, apiErr := urlID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.GetRound(r.Context(), playerID, roundID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}
