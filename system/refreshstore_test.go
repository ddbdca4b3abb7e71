package system

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"database/sql/driver"
	"encoding/gob"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-gorp/gorp"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/quipflip/quipflip/models"
)

// raw token ids used for sessions
func newTokens(n int) []string {
	toks := make([]string, n)
	for i := range toks {
		toks[i] = hex.EncodeToString(securecookie.GenerateRandomKey(32))
	}
	return toks
}

// Get Data representation of session.Values. Currently only testing for
// player id
func gobFromValues(i int64) []byte {
	m := map[interface{}]interface{}{"PlayerId": i}
	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(m)
	return buf.Bytes()
}

// dbSession.Data with no... data
func nilGob() []byte {
	m := map[interface{}]interface{}{}
	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(m)
	return buf.Bytes()
}

// helper for sqlmock select
func expectSelect(mock sqlmock.Sqlmock, args []driver.Value, rows *sqlmock.Rows, err error) {
	mock.ExpectQuery(`^SELECT (.*) FROM Session WHERE TokenHash = (.+)$`).
		WithArgs(args...).
		WillReturnRows(rows).
		WillReturnError(err)
}

// helper for sqlmock revoke
func expectRevoke(mock sqlmock.Sqlmock, hash string) {
	mock.ExpectExec(`^UPDATE Session SET RevokedAt = (.+) WHERE TokenHash = (.+) AND RevokedAt = 0$`).
		WithArgs(sqlmock.AnyArg(), hash).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// helper for sqlmock update
func expectUpdate(mock sqlmock.Sqlmock, args []driver.Value) {
	mock.ExpectExec("^update `Session` set `TokenHash`=(.+), `PlayerId`=(.+), `Data`=(.+), `CreatedAt`=(.+), `ExpiresAt`=(.+), `RevokedAt`=(.+) where `SessionId`=(.+);$").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// setup db, mock db, and refresh store
func makeDbAndStore() (sqlmock.Sqlmock, *sql.DB, *RefreshStore) {
	var wg sync.WaitGroup
	ctx := context.Background()
	// Open new mock database
	db, mock, err := sqlmock.New()
	if err != nil {
		panic(err)
	}
	dbMap := &gorp.DbMap{
		Db:              db,
		Dialect:         gorp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8MB4"},
		ExpandSliceArgs: true,
	}
	dbMap.AddTableWithName(models.Session{}, "Session").SetKeys(true, "Id")
	hash := sha256.New()
	io.WriteString(hash, "abrakadabra")
	s := NewRefreshStore(ctx, &wg, dbMap, hash.Sum(nil))
	s.Options = &sessions.Options{
		Path:     "/auth",
		HttpOnly: true,
		Secure:   true,
		//thirty days
		MaxAge: 60 * 60 * 24 * 30,
	}
	return mock, db, s
}

// add an encoded session token to request cookies
func setSessionForPlayerID(r *http.Request, store *RefreshStore, maxAge int, playerID int64) *sessions.Session {
	session := sessions.NewSession(store, RefreshCookieName)
	session.Values["PlayerId"] = playerID
	session.ID = tokens[playerID]
	opts := *store.Options
	opts.MaxAge = maxAge
	session.Options = &opts
	encoded, err := securecookie.EncodeMulti(session.Name(), &session.ID, store.codecs...)
	if err != nil {
		panic(err)
	}
	cookie := sessions.NewCookie(session.Name(), encoded, session.Options)
	if r != nil {
		r.AddCookie(cookie)
	}
	return session
}

var (
	tokens          = newTokens(6)
	now             = time.Now().Unix()
	oneDay    int64 = 60 * 60 * 24
	yesterday       = now - oneDay
	tomorrow        = now + oneDay
	col             = []string{"TokenHash", "PlayerId", "Data", "CreatedAt", "ExpiresAt", "RevokedAt", "SessionId"}
)

// sessionRow builds a db row for tokens[playerID] in col order, so rows
// double as update args.
func sessionRow(playerID, expires, revoked, rowID int64) []driver.Value {
	return []driver.Value{tokenHash(tokens[playerID]), playerID,
		gobFromValues(playerID), now, expires, revoked, rowID}
}

type testNew struct {
	playerID   int64
	hasCookie  bool
	row        []driver.Value
	err        error
	wantErr    error
	sessValues map[interface{}]interface{}
}

var testsNew = []testNew{
	{0, true, sessionRow(0, tomorrow, 0, 1), nil, nil, map[interface{}]interface{}{"PlayerId": int64(0)}},
	//expired
	{1, true, sessionRow(1, yesterday, 0, 2), nil, ErrTokenExpired, map[interface{}]interface{}{}},
	//revoked
	{2, true, sessionRow(2, tomorrow, yesterday, 3), nil, ErrTokenRevoked, map[interface{}]interface{}{}},
	//no cookie in request
	{3, false, nil, nil, nil, map[interface{}]interface{}{}},
	//no rows
	{4, true, nil, sql.ErrNoRows, ErrTokenNotFound, map[interface{}]interface{}{}},
}

func TestNew(t *testing.T) {
	mock, db, store := makeDbAndStore()
	defer db.Close()
	for _, test := range testsNew {
		r, err := http.NewRequest("GET", "http://localhost/auth/refresh", nil)
		if err != nil {
			t.Error(err)
		}
		// cookie was previously saved
		if test.hasCookie {
			setSessionForPlayerID(r, store, 60, test.playerID)
			rows := sqlmock.NewRows(col)
			if test.row != nil {
				rows.AddRow(test.row...)
			}
			expectSelect(mock, []driver.Value{tokenHash(tokens[test.playerID])}, rows, test.err)
		}
		// testing
		s, err := store.New(r, RefreshCookieName)
		if err != test.wantErr {
			t.Errorf("New() error = %v, want %v", err, test.wantErr)
		}
		// expected session.Values must equal actual
		eq := reflect.DeepEqual(s.Values, test.sessValues)
		if !eq {
			t.Errorf("expected session values %v but got %v", test.sessValues, s.Values)
		}
		if err = mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectation error: %s", err)
		}
	}
}

type testSave struct {
	playerID    int64
	hasPlayerID bool
	isNew       bool
	isRevoked   bool
	maxAge      int
	args        []driver.Value
	row         []driver.Value
	err         error
}

var testsSave = []testSave{
	{0, true, false, false, 60, []driver.Value{tokenHash(tokens[0])}, sessionRow(0, tomorrow, 0, 1), nil},
	// maxAge of -1 revokes the row and clears the cookie
	{1, true, false, true, -1, nil, nil, nil},
	// is new with no player id
	{0, false, true, false, 60, []driver.Value{sqlmock.AnyArg(), -1, nilGob(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0}, nil, sql.ErrNoRows},
	// is new with player id
	{2, true, true, false, 60, []driver.Value{sqlmock.AnyArg(), 2, gobFromValues(2), sqlmock.AnyArg(), sqlmock.AnyArg(), 0}, nil, sql.ErrNoRows},
}

func TestSave(t *testing.T) {
	mock, db, store := makeDbAndStore()
	defer db.Close()
	for _, test := range testsSave {
		r, err := http.NewRequest("GET", "http://localhost/auth/login", nil)
		w := httptest.NewRecorder()
		s := sessions.NewSession(store, RefreshCookieName)
		if err != nil {
			t.Error(err)
		}
		// session was previously issued
		if test.hasPlayerID {
			// save doesn't care what's in the request
			s = setSessionForPlayerID(nil, store, test.maxAge, test.playerID)
		}
		if test.isRevoked {
			expectRevoke(mock, tokenHash(tokens[test.playerID]))
		} else if test.isNew {
			// a new session is inserted, we cant be sure of the exact id
			// and time
			mock.ExpectQuery(`^SELECT (.*) FROM Session WHERE TokenHash = (.+)$`).
				WillReturnError(test.err)
			mock.ExpectExec("^insert into `Session` \\(`SessionId`,`TokenHash`,`PlayerId`,`Data`,`CreatedAt`,`ExpiresAt`,`RevokedAt`\\) values \\(null,(.+),(.+),(.+),(.+),(.+),(.+)\\);$").
				WithArgs(test.args...).
				WillReturnResult(sqlmock.NewResult(0, 0))
		} else {
			// a found session is updated
			expectSelect(mock, test.args, sqlmock.NewRows(col).AddRow(test.row...), test.err)
			expectUpdate(mock, test.row)
		}
		// testing
		err = store.Save(r, w, s)
		if err != nil {
			t.Errorf("session save err: %v ", err)
		}
		// if the database transactions went as expected pass
		if err = mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectation error: %s", err)
		}
	}
}

func TestFromValue(t *testing.T) {
	mock, db, store := makeDbAndStore()
	defer db.Close()

	// live token sent in a request body
	expectSelect(mock, []driver.Value{tokenHash(tokens[5])},
		sqlmock.NewRows(col).AddRow(sessionRow(5, tomorrow, 0, 6)...), nil)
	s, err := store.FromValue(tokens[5])
	if err != nil {
		t.Errorf("FromValue() error = %v", err)
	}
	if got := PlayerIDFromSession(s); got != 5 {
		t.Errorf("PlayerIDFromSession() = %v, want 5", got)
	}
	if s.IsNew {
		t.Error("expected loaded session to not be new")
	}

	// unknown token
	expectSelect(mock, []driver.Value{tokenHash("bogus")}, sqlmock.NewRows(col), sql.ErrNoRows)
	if _, err := store.FromValue("bogus"); err != ErrTokenNotFound {
		t.Errorf("FromValue() error = %v, want %v", err, ErrTokenNotFound)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}
