package httpclient

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/muset-ai/muset-go/logger"
	"github.com/muset-ai/muset-go/session"
)

// Navigator is the navigation surface the 401 handling drives. The
// consuming application decides what "redirect" means (a browser
// navigation, a TUI view switch, a callback into application code).
type Navigator interface {
	// CurrentPath returns the path the application is currently showing.
	CurrentPath() string
	// IsLoginView reports whether the login view is already current.
	IsLoginView() bool
	// RedirectToLogin navigates to the login view; returnTo is the path
	// to come back to after authentication.
	RedirectToLogin(returnTo string)
}

// ErrorNormalizer classifies surfaced request failures, logs a category
// per status code, and on 401 invalidates the session and redirects to
// the login view. It never alters the error the caller receives.
type ErrorNormalizer struct {
	store *session.Store
	nav   Navigator
	log   logger.Logger
	// authPathPrefixes name endpoints whose 401 responses must not
	// trigger the logout/redirect sequence.
	authPathPrefixes []string
}

// NewErrorNormalizer creates an ErrorNormalizer. nav may be nil when the
// consumer has no navigation surface; 401 then clears the session only.
func NewErrorNormalizer(store *session.Store, nav Navigator, log logger.Logger, authPathPrefixes []string) *ErrorNormalizer {
	return &ErrorNormalizer{
		store:            store,
		nav:              nav,
		log:              log,
		authPathPrefixes: authPathPrefixes,
	}
}

// Hook returns the FailureHook to register on the client builder.
func (n *ErrorNormalizer) Hook() FailureHook {
	return func(_ context.Context, req *nethttp.Request, status int, err error) {
		n.normalize(req, status, err)
	}
}

func (n *ErrorNormalizer) normalize(req *nethttp.Request, status int, err error) {
	path := ""
	if req != nil && req.URL != nil {
		path = req.URL.Path
	}

	if status == 0 {
		// Connectivity failure: report upward, no side effects.
		n.log.Error().
			Err(err).
			Str("category", "connectivity_failure").
			Str("path", path).
			Msg("API request failed without response")
		return
	}

	n.log.Error().
		Err(err).
		Str("category", categoryForStatus(status)).
		Int("status", status).
		Str("path", path).
		Msg("API request failed")

	if status == nethttp.StatusUnauthorized {
		n.handleUnauthorized(path)
	}
}

// handleUnauthorized clears the session and redirects to the login view,
// unless the failing request targeted an auth endpoint or the login view
// is already current.
func (n *ErrorNormalizer) handleUnauthorized(path string) {
	n.store.Clear()

	if n.nav == nil || n.isAuthEndpoint(path) || n.nav.IsLoginView() {
		return
	}
	n.nav.RedirectToLogin(n.nav.CurrentPath())
}

func (n *ErrorNormalizer) isAuthEndpoint(path string) bool {
	for _, prefix := range n.authPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func categoryForStatus(status int) string {
	switch status {
	case nethttp.StatusBadRequest:
		return "invalid_params"
	case nethttp.StatusUnauthorized:
		return "unauthorized"
	case nethttp.StatusForbidden:
		return "forbidden"
	case nethttp.StatusNotFound:
		return "not_found"
	case nethttp.StatusUnprocessableEntity:
		return "validation_failed"
	case nethttp.StatusInternalServerError:
		return "server_error"
	case nethttp.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "request_failed"
	}
}
