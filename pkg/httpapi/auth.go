package httpapi

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harun/toolgate/pkg/permission"
)

// ErrUnauthenticated is returned when a request carries no known bearer token
var ErrUnauthenticated = errors.New("unauthenticated")

// Credential binds a bearer token to a caller
type Credential struct {
	Token string
	User  permission.AuthenticatedUser
}

// TokenAuthenticator resolves bearer tokens against a static table
type TokenAuthenticator struct {
	credentials []Credential
}

// NewTokenAuthenticator validates creds and builds an authenticator
func NewTokenAuthenticator(creds []Credential) (*TokenAuthenticator, error) {
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		if c.Token == "" {
			return nil, fmt.Errorf("credential for %s has an empty token", c.User.ID)
		}
		if seen[c.Token] {
			return nil, fmt.Errorf("token for %s is already assigned", c.User.ID)
		}
		seen[c.Token] = true
	}
	return &TokenAuthenticator{credentials: append([]Credential(nil), creds...)}, nil
}

// Authenticate returns the caller for the request's bearer token
func (a *TokenAuthenticator) Authenticate(r *http.Request) (permission.AuthenticatedUser, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return permission.AuthenticatedUser{}, ErrUnauthenticated
	}

	// Compare against every credential, in constant time
	var (
		match permission.AuthenticatedUser
		found bool
	)
	for _, c := range a.credentials {
		if subtle.ConstantTimeCompare([]byte(c.Token), []byte(token)) == 1 {
			match, found = c.User, true
		}
	}
	if !found {
		return permission.AuthenticatedUser{}, ErrUnauthenticated
	}
	return match, nil
}
