// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package controllers maps the HTTP surface onto the game service.  Every
// handler speaks JSON; business rules stay in the game package and arrive
// here as *game.Error values that translate onto HTTP statuses.
package controllers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/zenazn/goji/web"

	"github.com/quipflip/quipflip/game"
	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/locks"
	"github.com/quipflip/quipflip/phrase"
	"github.com/quipflip/quipflip/system"
)

// MainController is the API controller type.  Its methods include the route
// handlers.
type MainController struct {
	// embed type for c.Env[""] context accessors
	system.Controller

	APISecret    string
	gameService  *game.Service
	store        *system.RefreshStore
	redisClient  *redis.Client
	dictionary   *phrase.Dictionary
	realIPHeader string
	version      string
}

// NewMainController is the constructor for the entire controller routing.
// redisClient may be nil when the deployment runs without redis.
func NewMainController(apiSecret string, gameService *game.Service,
	store *system.RefreshStore, redisClient *redis.Client,
	dictionary *phrase.Dictionary, realIPHeader string,
	version string) *MainController {

	return &MainController{
		APISecret:    apiSecret,
		gameService:  gameService,
		store:        store,
		redisClient:  redisClient,
		dictionary:   dictionary,
		realIPHeader: realIPHeader,
		version:      version,
	}
}

// statusForCode maps a game error code onto the HTTP status it travels
// with.  Codes outside the taxonomy are client errors.
func statusForCode(code string) int {
	switch code {
	case gameapi.CodeInvalidCredentials, gameapi.CodeTokenExpired,
		gameapi.CodeTokenRevoked:
		return http.StatusUnauthorized
	case gameapi.CodeNotAContributor:
		return http.StatusForbidden
	case gameapi.CodeNotFound, gameapi.CodeUsernameNotFound:
		return http.StatusNotFound
	case gameapi.CodeAlreadyInRound, gameapi.CodeAlreadyVoted:
		return http.StatusConflict
	case gameapi.CodeRateLimited:
		return http.StatusTooManyRequests
	case gameapi.CodeDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// translateError converts an error escaping the game layer into the
// transport error the client sees.  Errors with no client meaning are
// logged here and reported as a dependency failure so the wire contract
// stays closed.
func translateError(err error) *system.Error {
	var gameErr *game.Error
	if errors.As(err, &gameErr) {
		apiErr := system.NewError(statusForCode(gameErr.Code), gameErr.Code,
			gameErr.Detail)
		apiErr.RoundId = gameErr.RoundId
		return apiErr
	}
	if errors.Is(err, locks.ErrAcquireTimeout) {
		return system.NewError(http.StatusServiceUnavailable,
			gameapi.CodeDependencyUnavailable, "busy, try again shortly")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return system.NewError(http.StatusNotFound, gameapi.CodeNotFound,
			"not found")
	}
	log.Errorf("unhandled service error: %v", err)
	return system.NewError(http.StatusServiceUnavailable,
		gameapi.CodeDependencyUnavailable,
		"temporarily unable to process the request")
}

// decodeJSON decodes the request body into dst.  A missing or empty body
// leaves dst untouched, which suits the endpoints whose body is optional.
// Malformed JSON is reported with the given error code.
func decodeJSON(r *http.Request, code string, dst interface{}) *system.Error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return system.NewError(http.StatusBadRequest, code,
			"malformed request body")
	}
	return nil
}

// urlID parses the :id route parameter.  The routes only match digits, so
// a parse failure means the id is out of range.
func urlID(c web.C) (int64, *system.Error) {
	id, err := strconv.ParseInt(c.URLParams["id"], 10, 64)
	if err != nil || id < 1 {
		return 0, system.NewError(http.StatusNotFound, gameapi.CodeNotFound,
			"no such id")
	}
	return id, nil
}

// Health reports liveness and dependency status.  The database being down
// is a 503; redis is optional and only degrades the status.
func (controller *MainController) Health(c web.C, r *http.Request) (interface{}, int, *system.Error) {
	status := "ok"

	database := "ok"
	if err := controller.GetDbMap(c).Db.Ping(); err != nil {
		log.Warnf("health: database ping: %v", err)
		database = "unavailable"
		status = "degraded"
	}

	redisStatus := "disabled"
	if controller.redisClient != nil {
		redisStatus = "ok"
		if err := controller.redisClient.Ping(r.Context()).Err(); err != nil {
			log.Warnf("health: redis ping: %v", err)
			redisStatus = "unavailable"
			status = "degraded"
		}
	}

	var words int64
	if controller.dictionary != nil {
		words = int64(controller.dictionary.Len())
	}

	httpStatus := http.StatusOK
	if database != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}
	return &gameapi.HealthResponse{
		Status:          status,
		Database:        database,
		Redis:           redisStatus,
		DictionaryWords: words,
		Version:         controller.version,
	}, httpStatus, nil
}
