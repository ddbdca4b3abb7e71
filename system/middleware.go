package system

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zenazn/goji/web"
	gojimw "github.com/zenazn/goji/web/middleware"
	"github.com/zenazn/goji/web/mutil"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/ratelimit"
)

// ApplyDbMap makes sure controllers can have access to the gorp DbMap.
func (application *Application) ApplyDbMap(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		c.Env["DbMap"] = application.DbMap
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// ApplyAPI resolves the request's credentials to a player.  A Bearer access
// token is tried first, then the legacy X-API-Key header.  Failures leave
// the request anonymous; handlers that need a player respond 401 through
// Controller.APIPlayerID.
func (application *Application) ApplyAPI(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		var player *models.Player
		var err error

		authHeader := r.Header.Get("Authorization")
		apiKey := r.Header.Get("X-API-Key")
		if strings.HasPrefix(authHeader, "Bearer ") {
			var playerID int64
			playerID, err = application.validateToken(authHeader)
			if err == nil {
				player, err = models.GetPlayerByID(application.DbMap, playerID)
			} else if err == ErrAccessTokenExpired {
				c.Env["AuthErrorCode"] = gameapi.CodeTokenExpired
			}
		} else if apiKey != "" {
			player, err = models.GetPlayerByAPIKey(application.DbMap, apiKey)
		}

		if err != nil {
			log.Warnf("api authorization failure: %v", err)
		} else if player != nil {
			c.Env["APIPlayerID"] = player.Id
			log.Debugf("mapped api credentials to player %v", player.Id)
		}

		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// ApplyRateLimit enforces the per minute request budget.  Vote round starts
// consume a second, tighter budget on top of the general one.  Authenticated
// requests are bucketed by player, anonymous ones by client IP.
func (application *Application) ApplyRateLimit(limiter ratelimit.Limiter,
	generalLimit, voteLimit int64, realIPHeader string) func(c *web.C, h http.Handler) http.Handler {

	return func(c *web.C, h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + ClientIP(r, realIPHeader)
			if playerID, ok := c.Env["APIPlayerID"].(int64); ok {
				key = "player:" + strconv.FormatInt(playerID, 10)
			}

			allowed, retryAfter, err := limiter.Allow(r.Context(), key,
				generalLimit, time.Minute)
			if err != nil {
				log.Warnf("rate limit check: %v", err)
			} else if !allowed {
				writeRateLimited(w, retryAfter)
				return
			}

			if r.Method == http.MethodPost && r.URL.Path == "/rounds/vote" {
				allowed, retryAfter, err = limiter.Allow(r.Context(),
					key+":vote", voteLimit, time.Minute)
				if err != nil {
					log.Warnf("vote rate limit check: %v", err)
				} else if !allowed {
					writeRateLimited(w, retryAfter)
					return
				}
			}

			h.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	apiErr := NewError(http.StatusTooManyRequests, gameapi.CodeRateLimited,
		"request rate limit exceeded")
	apiErr.RetryAfter = retryAfter
	WriteError(w, apiErr)
}

// Logger is a middleware that logs the start and end of each request, along
// with some useful data about what was requested, what the response status was,
// and how long it took to return. This should be used after the RequestID
// middleware.
func Logger(RealIPHeader string) func(c *web.C, h http.Handler) http.Handler {
	return func(c *web.C, h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqID := gojimw.GetReqID(*c)

			log.Tracef("[%s] Started %s %q, from %s", reqID, r.Method,
				r.URL.String(), ClientIP(r, RealIPHeader))

			lw := mutil.WrapWriter(w)

			t1 := time.Now()
			h.ServeHTTP(lw, r)

			if lw.Status() == 0 {
				lw.WriteHeader(http.StatusOK)
			}
			t2 := time.Now()

			log.Tracef("[%s] Returning %03d in %s", reqID, lw.Status(), t2.Sub(t1))
		}
		return http.HandlerFunc(fn)
	}
}
