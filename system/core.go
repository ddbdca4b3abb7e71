package system

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/gorilla/sessions"
	"github.com/zenazn/goji/web"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/models"
)

// Application carries the state handlers reach through middleware: the gorp
// DbMap, the refresh token store, and the access token signing secret.
type Application struct {
	APISecret string
	Store     *RefreshStore
	DbMap     *gorp.DbMap
}

// GojiWebHandlerFunc is an adaptor that allows an http.HandlerFunc where a
// web.HandlerFunc is required.
func GojiWebHandlerFunc(h http.HandlerFunc) web.HandlerFunc {
	return func(_ web.C, w http.ResponseWriter, r *http.Request) {
		h(w, r)
	}
}

// Init connects the database, creates the refresh token store, and retains
// the access token signing secret.  The context and wait group bound the
// store's cleanup goroutine.
func (application *Application) Init(ctx context.Context, wg *sync.WaitGroup,
	apiSecret, cookieSecret string, cookieSecure bool, dbURL string) error {

	dbMap, err := models.GetDbMap(dbURL)
	if err != nil {
		return err
	}
	application.DbMap = dbMap

	hash := sha256.New()
	io.WriteString(hash, cookieSecret)
	application.Store = NewRefreshStore(ctx, wg, application.DbMap, hash.Sum(nil))
	application.Store.Options = &sessions.Options{
		Path:     "/auth",
		HttpOnly: true,
		Secure:   cookieSecure,
		//thirty days
		MaxAge: 60 * 60 * 24 * 30,
	}

	application.APISecret = apiSecret
	return nil
}

func (application *Application) Close() {
	log.Info("Application.Close() called")
	if application.DbMap != nil {
		if err := application.DbMap.Db.Close(); err != nil {
			log.Warnf("Can't close database: %v", err)
		}
	}
}

// Error is a transport level API error.  Status is the HTTP status code to
// respond with and Code is one of the gameapi error code constants.  RoundId
// and RetryAfter are extras individual codes carry.
type Error struct {
	Status     int
	Code       string
	Detail     string
	RoundId    int64
	RetryAfter time.Duration
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return e.Code + ": " + e.Detail
}

// NewError is a constructor for Error.
func NewError(status int, code, detail string) *Error {
	return &Error{Status: status, Code: code, Detail: detail}
}

// APIHandler executes an API processing function that returns a response
// payload and HTTP status, or an *Error.  It returns a web.HandlerFunc so it
// can be used with a goji router.  A zero status writes as 200 OK and a nil
// payload writes the header alone.
func (application *Application) APIHandler(apiFun func(web.C, *http.Request) (interface{}, int, *Error)) web.HandlerFunc {
	return func(c web.C, w http.ResponseWriter, r *http.Request) {
		payload, status, apiErr := apiFun(c, r)
		if apiErr != nil {
			WriteError(w, apiErr)
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		if payload == nil {
			w.WriteHeader(status)
			return
		}
		WriteJSON(w, status, payload)
	}
}

// WriteJSON marshals the given payload into the http.ResponseWriter and sets
// the HTTP status code.
func WriteJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnf("JSON encode error: %v", err)
	}
}

// WriteError writes the error response body for apiErr.  The machine
// readable code travels in the body's detail field.  Rate limit errors
// additionally carry a Retry-After header.
func WriteError(w http.ResponseWriter, apiErr *Error) {
	if apiErr.RetryAfter > 0 {
		secs := int64(apiErr.RetryAfter / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	WriteJSON(w, apiErr.Status, &gameapi.ErrorResponse{
		Detail:  apiErr.Code,
		Message: apiErr.Detail,
		RoundId: apiErr.RoundId,
	})
}

// APIInvalidHandler responds to unmatched requests. It matches the signature
// of http.HandlerFunc.
func APIInvalidHandler(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, NewError(http.StatusNotFound, gameapi.CodeNotFound,
		"unrecognized path or method"))
}

// ClientIP gets the client's real IP address using the realIPHeader header,
// or if that is empty, http.Request.RemoteAddr. Deployments behind a reverse
// proxy should configure the proxy to set the header from the connection
// address.
func ClientIP(r *http.Request, realIPHeader string) string {
	// getHost returns the host portion of a string containing either a
	// host:port formatted name or just a host.
	getHost := func(hostPort string) string {
		ip, _, err := net.SplitHostPort(hostPort)
		if err != nil {
			return hostPort
		}
		return ip
	}

	// If header not set, return RemoteAddr. Invalid hosts are replaced with "".
	if realIPHeader == "" {
		return getHost(r.RemoteAddr)
	}
	return getHost(r.Header.Get(realIPHeader))
}
