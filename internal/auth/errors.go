package auth

import "errors"

// Sentinel errors for the authentication failure modes callers branch on.
// Wrap them with fmt.Errorf("...: %w", err) to add context; callers use
// errors.Is to classify.
var (
	// ErrNotAuthenticated means no token is stored for the school.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrTokenExpired means the stored token is past its expiry buffer
	// and could not be refreshed.
	ErrTokenExpired = errors.New("token expired")

	// ErrNoRefreshToken means the stored token has no refresh token, so
	// only a fresh login can extend the session.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrInvalidCredentials means the identity provider rejected the
	// stored username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTwoFactorRequired means the login flow hit a second-factor
	// prompt that cannot be satisfied without the user.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")

	// ErrAuthTimeout means a login flow did not complete within its
	// deadline.
	ErrAuthTimeout = errors.New("authentication timed out")

	// ErrLockTimeout means another process held the auth lock for the
	// whole acquisition window.
	ErrLockTimeout = errors.New("could not acquire auth lock, another process may be authenticating")

	// ErrNoDisplay means an interactive browser login was requested in
	// an environment without a graphical session.
	ErrNoDisplay = errors.New("no graphical display available for browser login")
)
