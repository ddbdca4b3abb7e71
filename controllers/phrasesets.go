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

// Vote handles POST /phrasesets/:id/vote.  The caller must hold an active
// vote round on the phraseset.
func (controller *MainController) Vote(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	phrasesetID, apiErr := urlID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	var req gameapi.VoteRequest
	if apiErr := decodeJSON(r, gameapi.CodeInvalidPhrase, &req); apiErr != nil {
		return nil, 0, apiErr
	}

	resp, err := controller.gameService.CastVote(r.Context(), playerID,
		phrasesetID, req.Phrase)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// PhrasesetDetails handles GET /phrasesets/:id/details.  Contributors
// only; votes and results appear once the phraseset finalizes.
func (controller *MainController) PhrasesetDetails(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	phrasesetID, apiErr := urlID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.PhrasesetDetails(r.Context(), playerID,
		phrasesetID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// PhrasesetResults handles GET /phrasesets/:id/results.  The first view
// collects any unclaimed payout.
func (controller *MainController) PhrasesetResults(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	phrasesetID, apiErr := urlID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.PhrasesetResults(r.Context(), playerID,
		phrasesetID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}

// ClaimPrize handles POST /phrasesets/:id/claim.  Claiming an already
// collected payout reports the recorded amount instead of failing.
func (controller *MainController) ClaimPrize(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	playerID, apiErr := controller.APIPlayerID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	phrasesetID, apiErr := urlID(c)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	resp, err := controller.gameService.ClaimPrize(r.Context(), playerID,
		phrasesetID)
	if err != nil {
		return nil, 0, translateError(err)
	}
	return resp, 0, nil
}
