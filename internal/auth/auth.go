// Package auth supplies opaque credentials to the transport layer. Each
// provider handles one credential source (session cookies, bearer token).
package auth

import (
	"encoding/json"
	"net/http"
	"os"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// CredentialProvider decorates outgoing requests with a valid credential.
// The pipeline treats the credential as an opaque value; a provider that
// cannot supply one returns an auth-category error.
type CredentialProvider interface {
	// Apply attaches the credential to the request.
	Apply(req *http.Request) error

	// Name returns a human-readable name for this provider (for logging).
	Name() string
}

// StaticToken attaches a fixed bearer token to every request.
type StaticToken struct {
	Token string
}

func (p *StaticToken) Apply(req *http.Request) error {
	if p.Token == "" {
		return errors.New(errors.CategoryAuth, errors.SeverityFatal, "bearer token is empty")
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)
	return nil
}

func (p *StaticToken) Name() string { return "StaticToken" }

// CookieFile replays a saved browser session from a JSON file mapping cookie
// names to values.
type CookieFile struct {
	cookies map[string]string
}

// LoadCookieFile reads the cookie jar file; a missing or unreadable file is
// an auth error since no request can succeed without a session.
func LoadCookieFile(path string) (*CookieFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, errors.SeverityFatal, "unable to read cookie file").
			WithContext("path", path)
	}
	var cookies map[string]string
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, errors.SeverityFatal, "unable to parse cookie file").
			WithContext("path", path)
	}
	if len(cookies) == 0 {
		return nil, errors.New(errors.CategoryAuth, errors.SeverityFatal, "cookie file contains no cookies").
			WithContext("path", path)
	}
	return &CookieFile{cookies: cookies}, nil
}

func (p *CookieFile) Apply(req *http.Request) error {
	for name, value := range p.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return nil
}

func (p *CookieFile) Name() string { return "CookieFile" }

// None attaches nothing; useful for tests and anonymous endpoints.
type None struct{}

func (None) Apply(*http.Request) error { return nil }
func (None) Name() string              { return "None" }
