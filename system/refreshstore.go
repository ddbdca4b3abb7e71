package system

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/quipflip/quipflip/models"
)

// RefreshCookieName is the cookie that carries the encoded refresh token id.
const RefreshCookieName = "refresh"

// Refresh token load failures.  Controllers map these onto the wire error
// codes.
var (
	ErrTokenNotFound = errors.New("refresh token not recognized")
	ErrTokenExpired  = errors.New("refresh token expired")
	ErrTokenRevoked  = errors.New("refresh token revoked")
)

// RefreshStore stores refresh tokens in the database behind the gorilla
// sessions.Store interface.  The raw token id travels either in a
// securecookie encoded HTTP-only cookie or in a request body; only its
// SHA-256 hash is persisted.  Revoked rows are kept until expiry so a
// replayed token reads as revoked rather than unknown.
type RefreshStore struct {
	Options *sessions.Options
	codecs  []securecookie.Codec
	dbMap   *gorp.DbMap
}

// NewRefreshStore returns a new RefreshStore. The keyPairs are used in the
// same way as the gorilla sessions CookieStore.
func NewRefreshStore(ctx context.Context, wg *sync.WaitGroup, dbMap *gorp.DbMap, keyPairs ...[]byte) *RefreshStore {
	s := &RefreshStore{
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		dbMap:  dbMap,
	}
	// clean db of expired refresh tokens once an hour
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Hour):
				n, err := models.DestroyExpiredSessions(s.dbMap, time.Now().Unix())
				if err != nil {
					log.Warnf("DestroyExpiredSessions: %v", err)
				} else if n > 0 {
					log.Debugf("removed %d expired refresh tokens", n)
				}
			}
		}
	}()
	return s
}

// tokenHash returns the hex encoded SHA-256 of a raw token id.
func tokenHash(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached session.
func (s *RefreshStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New creates a new session for the given request r. If the request
// contains a valid cookie for a live refresh token, that session will be
// loaded from the database.  Load failures surface as ErrTokenNotFound,
// ErrTokenExpired, or ErrTokenRevoked.
func (s *RefreshStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	c, err := r.Cookie(name)
	if err != nil {
		if err == http.ErrNoCookie {
			return session, nil
		}
		return session, err
	}
	err = securecookie.DecodeMulti(name, c.Value, &session.ID, s.codecs...)
	if err != nil {
		// these are not the sessions you are looking for
		log.Infof("refreshstore: New: unable to decode cookie: %v", err)
		return session, nil
	}
	if err := s.load(session); err != nil {
		return session, err
	}
	return session, nil
}

// FromValue builds the session for a raw refresh token value sent in a
// request body rather than a cookie.  The same load failure sentinels as
// New apply.
func (s *RefreshStore) FromValue(token string) (*sessions.Session, error) {
	session := sessions.NewSession(s, RefreshCookieName)
	opts := *s.Options
	session.Options = &opts
	session.ID = token
	if err := s.load(session); err != nil {
		return session, err
	}
	return session, nil
}

// NewSessionForPlayer returns a fresh unsaved session bound to playerID.
// Save assigns the token id and inserts the database row.
func (s *RefreshStore) NewSessionForPlayer(playerID int64) *sessions.Session {
	session := sessions.NewSession(s, RefreshCookieName)
	opts := *s.Options
	session.Options = &opts
	session.Values["PlayerId"] = playerID
	return session
}

// PlayerIDFromSession extracts the player id a refresh session was issued
// to, or -1 when the session carries none.
func PlayerIDFromSession(session *sessions.Session) int64 {
	if id, ok := session.Values["PlayerId"].(int64); ok {
		return id
	}
	return -1
}

// Save stores the session in the database. If session.Options.MaxAge
// is < 0, the session row is revoked and the client cookie cleared.  New
// sessions are assigned a random token id; only its hash reaches the
// database.
func (s *RefreshStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if err := s.Revoke(session); err != nil {
			return err
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}
	if len(session.ID) == 0 {
		session.ID = hex.EncodeToString(securecookie.GenerateRandomKey(32))
	}
	if err := s.save(session); err != nil {
		return err
	}
	// data is not stored in the cookie, only the token id
	encoded, err := securecookie.EncodeMulti(session.Name(), &session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Revoke marks the session's database row revoked without touching client
// cookies.  Rotation revokes the old row this way before saving the
// replacement; Save with a negative MaxAge both revokes and clears the
// cookie.
func (s *RefreshStore) Revoke(session *sessions.Session) error {
	if len(session.ID) == 0 {
		return nil
	}
	_, err := s.dbMap.Exec("UPDATE Session SET RevokedAt = ? WHERE TokenHash = ? AND RevokedAt = 0",
		time.Now().Unix(), tokenHash(session.ID))
	if err != nil {
		return fmt.Errorf("could not revoke session: %v", err)
	}
	return nil
}

// load populates session from its database row if one exists.  Rows are
// found by token hash; the raw id never reaches the database.
func (s *RefreshStore) load(session *sessions.Session) error {
	dbSession, err := models.GetSessionByTokenHash(s.dbMap, tokenHash(session.ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrTokenNotFound
		}
		return fmt.Errorf("could not select session: %v", err)
	}
	if dbSession.RevokedAt != 0 {
		return ErrTokenRevoked
	}
	if dbSession.ExpiresAt < time.Now().Unix() {
		return ErrTokenExpired
	}
	session.IsNew = false
	if len(dbSession.Data) == 0 {
		return nil
	}
	// write db Data to session.Values
	return gob.NewDecoder(bytes.NewBuffer(dbSession.Data)).Decode(&session.Values)
}

// save checks whether the session is new and inserts if new. Updates if
// not.
func (s *RefreshStore) save(session *sessions.Session) error {
	var dbSession models.Session
	var buf bytes.Buffer
	var isNew bool
	hash := tokenHash(session.ID)
	err := s.dbMap.SelectOne(&dbSession, "SELECT * FROM Session WHERE TokenHash = ?", hash)
	if err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("could not select session: %v", err)
		}
		// no rows found so new
		isNew = true
	}
	if playerID, ok := session.Values["PlayerId"].(int64); ok {
		dbSession.PlayerId = playerID
	} else {
		// all sessions with no player specified are PlayerId -1
		dbSession.PlayerId = -1
	}
	if err := gob.NewEncoder(&buf).Encode(session.Values); err != nil {
		return err
	}
	dbSession.Data = buf.Bytes()
	if isNew {
		now := time.Now().Unix()
		dbSession.TokenHash = hash
		dbSession.CreatedAt = now
		dbSession.ExpiresAt = now + int64(session.Options.MaxAge)
		if err := s.dbMap.Insert(&dbSession); err != nil {
			return fmt.Errorf("could not insert session: %v", err)
		}
	} else if _, err := s.dbMap.Update(&dbSession); err != nil {
		return fmt.Errorf("could not update session: %v", err)
	}
	return nil
}
