package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/magister-tools/magctl/internal/logger"
)

// pageLoadDelay gives single-page-app redirects time to settle before the
// page is inspected.
const pageLoadDelay = 2 * time.Second

const locationPollInterval = 500 * time.Millisecond

// browserTokenLifetime is assumed for tokens lifted out of a page when the
// OIDC record carries no expiry. Magister web sessions run about two hours.
const browserTokenLifetime = 2 * time.Hour

// extractedToken mirrors the object returned by the in-page extraction
// script. ExpiresAt is a Unix timestamp.
type extractedToken struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    float64 `json:"expires_at"`
}

// BrowserAuthenticator opens a real browser window for the user to log in,
// then lifts the OAuth token out of the page. The persistent profile keeps
// the session alive across runs, so later logins usually complete without
// any interaction.
type BrowserAuthenticator struct {
	school  string
	dataDir string
	timeout time.Duration
	log     *logger.Logger
}

// NewBrowserAuthenticator creates an interactive authenticator. dataDir is
// the persistent browser profile directory for the school.
func NewBrowserAuthenticator(school, dataDir string, timeout time.Duration, log *logger.Logger) *BrowserAuthenticator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &BrowserAuthenticator{school: school, dataDir: dataDir, timeout: timeout, log: log}
}

// LoginURL returns the school's login page.
func (b *BrowserAuthenticator) LoginURL() string {
	return fmt.Sprintf("https://%s.magister.net", b.school)
}

// Authenticate opens the browser and waits for the user to reach the
// dashboard, then extracts and returns the token. Fails fast with
// ErrNoDisplay when no graphical session is available.
func (b *BrowserAuthenticator) Authenticate(ctx context.Context) (*Token, error) {
	if !HasGraphicalSession() {
		return nil, ErrNoDisplay
	}
	if err := os.MkdirAll(b.dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create browser data directory: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.dataDir),
		chromedp.Flag("headless", false),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	b.log.Info("Opening browser for login at %s", b.LoginURL())
	b.log.Info("Complete the login in the browser window...")

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(b.LoginURL()),
		chromedp.Sleep(pageLoadDelay),
	); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}

	if err := waitForDashboard(browserCtx, b.timeout); err != nil {
		return nil, err
	}

	// Let the dashboard finish booting so the OIDC record is written.
	if err := chromedp.Run(browserCtx, chromedp.Sleep(pageLoadDelay)); err != nil {
		return nil, fmt.Errorf("browser closed during login: %w", err)
	}

	tok, err := extractToken(browserCtx, b.school)
	if err != nil {
		return nil, err
	}

	if err := saveStorageState(browserCtx, filepath.Join(b.dataDir, storageStateFilename)); err != nil {
		b.log.WarningVerbose("could not save browser session state: %v", err)
	}

	b.log.Success("Login successful for %s", b.school)
	return tok, nil
}

// waitForDashboard polls the page URL until it matches a logged-in pattern.
func waitForDashboard(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return fmt.Errorf("browser closed during login: %w", err)
		}
		if isDashboardURL(location) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: login not completed within %s", ErrAuthTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(locationPollInterval):
		}
	}
}

func isDashboardURL(location string) bool {
	for _, pattern := range dashboardPatterns {
		if strings.Contains(location, pattern) {
			return true
		}
	}
	return false
}

// extractToken lifts the OAuth token out of the page's web storage, falling
// back to cookies when the storage layout is unrecognized.
func extractToken(ctx context.Context, school string) (*Token, error) {
	var raw json.RawMessage
	if err := chromedp.Run(ctx, chromedp.Evaluate(oidcTokenExtractionJS, &raw)); err != nil {
		return nil, fmt.Errorf("failed to inspect page storage: %w", err)
	}

	var extracted extractedToken
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &extracted); err != nil {
			return nil, fmt.Errorf("unexpected token record in page storage: %w", err)
		}
	}

	if extracted.AccessToken == "" {
		// Cookie fallback for older deployments.
		cookieToken, err := tokenFromCookies(ctx)
		if err != nil {
			return nil, err
		}
		extracted.AccessToken = cookieToken
	}
	if extracted.AccessToken == "" {
		return nil, fmt.Errorf("could not extract access token, ensure the login completed")
	}

	var expiresAt time.Time
	if extracted.ExpiresAt > 0 {
		expiresAt = time.Unix(int64(extracted.ExpiresAt), 0)
	} else {
		expiresAt = time.Now().Add(browserTokenLifetime)
	}

	return &Token{
		AccessToken:  extracted.AccessToken,
		School:       school,
		RefreshToken: extracted.RefreshToken,
		ExpiresAt:    &expiresAt,
	}, nil
}

func tokenFromCookies(ctx context.Context) (string, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to read browser cookies: %w", err)
	}
	for _, c := range cookies {
		if strings.Contains(strings.ToLower(c.Name), "token") {
			return c.Value, nil
		}
	}
	return "", nil
}

// saveStorageState snapshots the browser cookies next to the profile so a
// future session can warm-start. The file holds session cookies, hence 0600.
func saveStorageState(ctx context.Context, path string) error {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return err
	}
	state := map[string]interface{}{"cookies": cookies}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// HasGraphicalSession reports whether an interactive browser window can be
// shown. On Linux this means a running X or Wayland session; macOS and
// Windows desktops always have one.
func HasGraphicalSession() bool {
	switch runtime.GOOS {
	case "linux":
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	case "darwin":
		// SSH sessions into a Mac have no window server access.
		return os.Getenv("SSH_CONNECTION") == "" || os.Getenv("DISPLAY") != ""
	default:
		return true
	}
}
