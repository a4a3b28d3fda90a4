// Package auth authenticates HTTP and MCP transport requests against
// per-user_id bearer tokens.
//
// Built on bcrypt-based password verification
// (bcrypt.CompareHashAndPassword / bcrypt.GenerateFromPassword): this
// module has no user accounts or sessions, only a static map of
// user_id -> bcrypt token hash loaded from config, so the same
// JWT/session/lockout machinery is dropped and only the hashing
// primitive is kept, scoped down to what the memory service needs --
// proving that a request's bearer token belongs to the user_id it
// claims before the façade ever sees the call.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned when a bearer token does not match the
// claimed user's stored hash, or the user has no stored hash at all.
var ErrInvalidToken = errors.New("auth: invalid bearer token")

// ErrMissingToken is returned when a request carries no Authorization
// header at all.
var ErrMissingToken = errors.New("auth: missing bearer token")

// Authenticator verifies bearer tokens against a fixed set of bcrypt
// token hashes, one per user_id, loaded once at startup from
// config.AuthConfig.TokenHashes.
type Authenticator struct {
	hashes map[string]string
}

// New builds an Authenticator from a user_id -> bcrypt-hash map.
func New(tokenHashes map[string]string) *Authenticator {
	h := make(map[string]string, len(tokenHashes))
	for k, v := range tokenHashes {
		h[k] = v
	}
	return &Authenticator{hashes: h}
}

// HashToken bcrypt-hashes a plaintext token for storage in
// MEMG_AUTH_TOKENS, following the same bcrypt.GenerateFromPassword call.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// dummyHash is a well-formed bcrypt hash at DefaultCost, so comparing
// against it costs as much as comparing against a stored user hash.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("memg-dummy"), bcrypt.DefaultCost)

// Verify checks that token is the plaintext bearer token for userID.
// Constant-time on the userID lookup miss path so an unknown user_id
// takes the same route as a present-but-wrong one.
func (a *Authenticator) Verify(userID, token string) error {
	hash, ok := a.hashes[userID]
	if !ok {
		// Run a dummy comparison so timing doesn't leak user existence.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(token))
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// ExtractBearer pulls the token out of an "Authorization: Bearer <token>"
// header value.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ConstantTimeEqual compares two strings without leaking timing
// information, used where a token must be checked against a single
// known value rather than looked up in the hash map (e.g. a shared
// admin token).
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
