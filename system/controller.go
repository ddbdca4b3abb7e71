package system

import (
	"net/http"

	"github.com/go-gorp/gorp"
	"github.com/zenazn/goji/web"

	"github.com/quipflip/quipflip/gameapi"
)

// Controller is embedded by the API controllers for shared request state
// accessors.
type Controller struct {
}

// GetDbMap returns the gorp DbMap stored by the ApplyDbMap middleware.
func (controller *Controller) GetDbMap(c web.C) *gorp.DbMap {
	return c.Env["DbMap"].(*gorp.DbMap)
}

// APIPlayerID returns the authenticated player id for the request, or the
// 401 Error the handler should return.
func (controller *Controller) APIPlayerID(c web.C) (int64, *Error) {
	if id, ok := c.Env["APIPlayerID"].(int64); ok {
		return id, nil
	}
	code := gameapi.CodeInvalidCredentials
	detail := "missing or invalid credentials"
	if authCode, ok := c.Env["AuthErrorCode"].(string); ok &&
		authCode == gameapi.CodeTokenExpired {
		code = authCode
		detail = "access token expired"
	}
	return -1, NewError(http.StatusUnauthorized, code, detail)
}
