package controllers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"database/sql/driver"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-gorp/gorp"
	"github.com/gorilla/sessions"
	"github.com/zenazn/goji/web"
	"golang.org/x/crypto/bcrypt"

	"github.com/quipflip/quipflip/gameapi"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/system"
)

var (
	testNow = time.Now().Unix()

	playerCols = []string{"PlayerId", "ApiKey", "Username", "UsernameCanonical",
		"Email", "PasswordHash", "Balance", "LastLoginDate", "ActiveRoundId",
		"CreatedAt"}
	sessionCols = []string{"SessionId", "TokenHash", "PlayerId", "Data",
		"CreatedAt", "ExpiresAt", "RevokedAt"}

	// cheapest cost so the hash is fast to make and to check
	passwordHash, _ = bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
)

// makeAuthController wires a controller with a refresh store over a mock
// database.  The cleanup func stops the store's expiry goroutine.
func makeAuthController() (sqlmock.Sqlmock, *gorp.DbMap, *MainController, func()) {
	mock, dbMap := makeDB()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	store := system.NewRefreshStore(ctx, &wg, dbMap, []byte("abrakadabra"))
	store.Options = &sessions.Options{
		Path:     "/auth",
		HttpOnly: true,
		MaxAge:   60 * 60 * 24 * 30,
	}
	mc := NewMainController("secret", nil, store, nil, nil, "", "test")
	cleanup := func() {
		cancel()
		wg.Wait()
		dbMap.Db.Close()
	}
	return mock, dbMap, mc, cleanup
}

func playerRow(id int64, username string) []driver.Value {
	return []driver.Value{id, "11111111-2222-3333-4444-555555555555", username,
		models.CanonicalUsername(username), "", passwordHash, 1000, "", 0,
		testNow}
}

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func gobValues(playerID int64) []byte {
	m := map[interface{}]interface{}{"PlayerId": playerID}
	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(m)
	return buf.Bytes()
}

// expectTokenIssue covers the database traffic of minting a fresh refresh
// session: a miss on the new token's hash followed by the insert.
func expectTokenIssue(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`^SELECT (.*) FROM Session WHERE TokenHash = (.+)$`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("^insert into `Session` \\(`SessionId`,`TokenHash`,`PlayerId`,`Data`,`CreatedAt`,`ExpiresAt`,`RevokedAt`\\) values \\(null,(.+),(.+),(.+),(.+),(.+),(.+)\\);$").
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func decodeToken(t *testing.T, w *httptest.ResponseRecorder) *gameapi.TokenResponse {
	t.Helper()
	var resp gameapi.TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	return &resp
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) *gameapi.ErrorResponse {
	t.Helper()
	var resp gameapi.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return &resp
}

func TestLogin(t *testing.T) {
	mock, dbMap, mc, cleanup := makeAuthController()
	defer cleanup()

	c := web.C{Env: map[interface{}]interface{}{"DbMap": dbMap}}
	r, _ := http.NewRequest("POST", "/auth/login",
		strings.NewReader(`{"username":"Frosty","password":"hunter2"}`))
	w := httptest.NewRecorder()

	mock.ExpectQuery(`^SELECT (.*) FROM Players WHERE UsernameCanonical = (.+)$`).
		WithArgs("frosty").
		WillReturnRows(sqlmock.NewRows(playerCols).AddRow(playerRow(7, "Frosty")...))
	// every live refresh token the player holds is revoked on login
	mock.ExpectExec(`^UPDATE Session SET RevokedAt = (.+) WHERE PlayerId = (.+) AND RevokedAt = 0$`).
		WithArgs(sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTokenIssue(mock)

	mc.Login(c, w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("Login() status = %d, want %d, body %s", w.Code,
			http.StatusOK, w.Body.String())
	}
	resp := decodeToken(t, w)
	if resp.PlayerId != 7 || resp.Username != "Frosty" {
		t.Errorf("Login() identity = %d/%q, want 7/Frosty", resp.PlayerId,
			resp.Username)
	}
	if resp.TokenType != "bearer" || resp.ExpiresIn != 900 {
		t.Errorf("Login() token meta = %q/%d, want bearer/900", resp.TokenType,
			resp.ExpiresIn)
	}
	if resp.AccessToken == "" {
		t.Error("Login() returned no access token")
	}
	if len(resp.RefreshToken) != 64 {
		t.Errorf("Login() refresh token length = %d, want 64",
			len(resp.RefreshToken))
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), system.RefreshCookieName+"=") {
		t.Error("Login() did not set the refresh cookie")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	tests := []struct {
		testName string
		body     string
		rows     *sqlmock.Rows
		err      error
	}{{
		testName: "wrong password",
		body:     `{"username":"Frosty","password":"wrong"}`,
		rows:     sqlmock.NewRows(playerCols).AddRow(playerRow(7, "Frosty")...),
	}, {
		testName: "unknown username",
		body:     `{"username":"Frosty","password":"hunter2"}`,
		rows:     sqlmock.NewRows(playerCols),
		err:      sql.ErrNoRows,
	}}
	mock, dbMap, mc, cleanup := makeAuthController()
	defer cleanup()
	for _, test := range tests {
		c := web.C{Env: map[interface{}]interface{}{"DbMap": dbMap}}
		r, _ := http.NewRequest("POST", "/auth/login", strings.NewReader(test.body))
		w := httptest.NewRecorder()

		mock.ExpectQuery(`^SELECT (.*) FROM Players WHERE UsernameCanonical = (.+)$`).
			WithArgs("frosty").
			WillReturnRows(test.rows).
			WillReturnError(test.err)

		mc.Login(c, w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Login() status = %d, want %d for test %s", w.Code,
				http.StatusUnauthorized, test.testName)
		}
		// the two failures must be indistinguishable on the wire
		resp := decodeAPIError(t, w)
		if resp.Detail != gameapi.CodeInvalidCredentials {
			t.Errorf("Login() detail = %q, want %q for test %s", resp.Detail,
				gameapi.CodeInvalidCredentials, test.testName)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectation error: %s", err)
		}
	}
}

func TestRefreshRotation(t *testing.T) {
	mock, dbMap, mc, cleanup := makeAuthController()
	defer cleanup()

	tok := strings.Repeat("ab", 32)
	hash := sha256hex(tok)

	c := web.C{Env: map[interface{}]interface{}{"DbMap": dbMap}}
	r, _ := http.NewRequest("POST", "/auth/refresh",
		strings.NewReader(`{"refresh_token":"`+tok+`"}`))
	w := httptest.NewRecorder()

	mock.ExpectQuery(`^SELECT (.*) FROM Session WHERE TokenHash = (.+)$`).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(3, hash, 7, gobValues(7), testNow-100, testNow+1000, 0))
	mock.ExpectQuery(`^SELECT (.*) FROM Players WHERE PlayerId = (.+)$`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(playerCols).AddRow(playerRow(7, "Frosty")...))
	// the presented token is burned before its replacement is minted
	mock.ExpectExec(`^UPDATE Session SET RevokedAt = (.+) WHERE TokenHash = (.+) AND RevokedAt = 0$`).
		WithArgs(sqlmock.AnyArg(), hash).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTokenIssue(mock)

	mc.Refresh(c, w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("Refresh() status = %d, want %d, body %s", w.Code,
			http.StatusOK, w.Body.String())
	}
	resp := decodeToken(t, w)
	if resp.PlayerId != 7 {
		t.Errorf("Refresh() player id = %d, want 7", resp.PlayerId)
	}
	if resp.RefreshToken == tok || resp.RefreshToken == "" {
		t.Errorf("Refresh() did not rotate the token: %q", resp.RefreshToken)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestRefreshRejections(t *testing.T) {
	tests := []struct {
		testName string
		row      []driver.Value
		err      error
		wantCode string
	}{{
		testName: "expired token",
		row:      []driver.Value{3, "", 7, gobValues(7), testNow - 100, testNow - 10, 0},
		wantCode: gameapi.CodeTokenExpired,
	}, {
		testName: "revoked token",
		row:      []driver.Value{3, "", 7, gobValues(7), testNow - 100, testNow + 1000, testNow - 50},
		wantCode: gameapi.CodeTokenRevoked,
	}, {
		testName: "unknown token",
		err:      sql.ErrNoRows,
		wantCode: gameapi.CodeInvalidCredentials,
	}}
	mock, dbMap, mc, cleanup := makeAuthController()
	defer cleanup()
	for _, test := range tests {
		c := web.C{Env: map[interface{}]interface{}{"DbMap": dbMap}}
		r, _ := http.NewRequest("POST", "/auth/refresh",
			strings.NewReader(`{"refresh_token":"`+strings.Repeat("cd", 32)+`"}`))
		w := httptest.NewRecorder()

		rows := sqlmock.NewRows(sessionCols)
		if test.row != nil {
			rows.AddRow(test.row...)
		}
		mock.ExpectQuery(`^SELECT (.*) FROM Session WHERE TokenHash = (.+)$`).
			WillReturnRows(rows).
			WillReturnError(test.err)

		mc.Refresh(c, w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Refresh() status = %d, want %d for test %s", w.Code,
				http.StatusUnauthorized, test.testName)
		}
		resp := decodeAPIError(t, w)
		if resp.Detail != test.wantCode {
			t.Errorf("Refresh() detail = %q, want %q for test %s", resp.Detail,
				test.wantCode, test.testName)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectation error: %s", err)
		}
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	_, dbMap, mc, cleanup := makeAuthController()
	defer cleanup()

	c := web.C{Env: map[interface{}]interface{}{"DbMap": dbMap}}
	r, _ := http.NewRequest("POST", "/auth/refresh", nil)
	w := httptest.NewRecorder()

	mc.Refresh(c, w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Refresh() status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	resp := decodeAPIError(t, w)
	if resp.Detail != gameapi.CodeInvalidCredentials {
		t.Errorf("Refresh() detail = %q, want %q", resp.Detail,
			gameapi.CodeInvalidCredentials)
	}
}

func TestLogout(t *testing.T) {
	mock, dbMap, mc, cleanup := makeAuthController()
	defer cleanup()

	tok := strings.Repeat("ef", 32)
	hash := sha256hex(tok)

	c := web.C{Env: map[interface{}]interface{}{"DbMap": dbMap}}
	r, _ := http.NewRequest("POST", "/auth/logout",
		strings.NewReader(`{"refresh_token":"`+tok+`"}`))
	w := httptest.NewRecorder()

	mock.ExpectQuery(`^SELECT (.*) FROM Session WHERE TokenHash = (.+)$`).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(3, hash, 7, gobValues(7), testNow-100, testNow+1000, 0))
	mock.ExpectExec(`^UPDATE Session SET RevokedAt = (.+) WHERE TokenHash = (.+) AND RevokedAt = 0$`).
		WithArgs(sqlmock.AnyArg(), hash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mc.Logout(c, w, r)

	if w.Code != http.StatusNoContent {
		t.Errorf("Logout() status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Error("Logout() did not clear the refresh cookie")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestLogoutWithoutToken(t *testing.T) {
	// No token anywhere is still a success; there is nothing to revoke.
	_, dbMap, mc, cleanup := makeAuthController()
	defer cleanup()

	c := web.C{Env: map[interface{}]interface{}{"DbMap": dbMap}}
	r, _ := http.NewRequest("POST", "/auth/logout", nil)
	w := httptest.NewRecorder()

	mc.Logout(c, w, r)

	if w.Code != http.StatusNoContent {
		t.Errorf("Logout() status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
