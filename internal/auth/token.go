// Package auth keeps per-profile token caches. Obtaining tokens is out of
// scope; the store only reads, validates, writes and removes them.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/tarrence/cray-cli/internal/fsutil"
)

// Token is the on-disk token document.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresAt is seconds since the epoch; zero means unknown.
	ExpiresAt float64 `json:"expires_at,omitempty"`
	ClientID  string  `json:"client_id,omitempty"`
}

func (t Token) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.AccessToken, validation.Required),
		validation.Field(&t.ExpiresAt, validation.Min(0.0)),
	)
}

// Expiry returns when the token expires. expires_at wins; otherwise the exp
// claim of a JWT access token is used without verifying the signature.
func (t Token) Expiry() (time.Time, bool) {
	if t.ExpiresAt > 0 {
		sec := int64(t.ExpiresAt)
		return time.Unix(sec, int64((t.ExpiresAt-float64(sec))*1e9)), true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token is known to have expired at now.
func (t Token) Expired(now time.Time) bool {
	exp, ok := t.Expiry()
	return ok && !now.Before(exp)
}

// ReadTokenFile loads and validates a token document.
func ReadTokenFile(path string) (*Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read token")
	}
	var tok Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, errors.Wrapf(err, "token file %s", path)
	}
	if err := tok.Validate(); err != nil {
		return nil, errors.Wrapf(err, "token file %s", path)
	}
	return &tok, nil
}

// Store manages tokens under <dir>/<profile>.json.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Path(profile string) string {
	return filepath.Join(s.dir, profile+".json")
}

// Load returns the profile's token, or nil when none is cached.
func (s *Store) Load(profile string) (*Token, error) {
	tok, err := ReadTokenFile(s.Path(profile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return tok, err
}

// Save writes the token with owner-only permissions.
func (s *Store) Save(profile string, tok Token) error {
	if err := tok.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.Path(profile), b, 0o600)
}

// Delete removes the cached token. A missing token is not an error.
func (s *Store) Delete(profile string) error {
	err := os.Remove(s.Path(profile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Source resolves the token sent with requests for one invocation.
type Source struct {
	Store   *Store
	Profile string
	// Override is an explicit token file path taking precedence over the store.
	Override string
}

// AccessToken returns the access token to send, or "" when none is available.
func (s Source) AccessToken() (string, error) {
	var (
		tok *Token
		err error
	)
	switch {
	case s.Override != "":
		tok, err = ReadTokenFile(s.Override)
	case s.Store != nil:
		tok, err = s.Store.Load(s.Profile)
	}
	if err != nil || tok == nil {
		return "", err
	}
	return tok.AccessToken, nil
}
