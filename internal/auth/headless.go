package auth

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/magister-tools/magctl/internal/logger"
)

// Human-like delay ranges. The login form rejects obviously scripted input,
// so typing and clicking pace a real user.
const (
	minTypingDelay = 300 * time.Millisecond
	maxTypingDelay = 800 * time.Millisecond
	minActionDelay = 500 * time.Millisecond
	maxActionDelay = 1500 * time.Millisecond
)

const headlessUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

const usernameSelector = `input[type="text"], input[type="email"], input[name="username"]`
const passwordSelector = `input[type="password"]`

// loginOutcomeJS reports "done" once the dashboard is reached, "error:<text>"
// when the page shows an error element, and "" while still pending.
const loginOutcomeJS = `(() => {
	const url = window.location.href;
	if (url.includes('/magister') || url.includes('/today') ||
		url.includes('/#/today') || url.includes('/#/agenda')) {
		return 'done';
	}
	const errorEl = document.querySelector('.error, .alert-error, [class*="error"]');
	if (errorEl && errorEl.textContent && errorEl.textContent.trim()) {
		return 'error:' + errorEl.textContent.trim();
	}
	return '';
})()`

// twoFactorCheckJS looks for second-factor prompts. Matching is heuristic;
// a false negative only downgrades the error to a timeout.
const twoFactorCheckJS = `(() => {
	const selectors = [
		'input[type="tel"]',
		'input[name*="otp"]',
		'input[name*="code"]',
		'input[name*="2fa"]',
		'[class*="authenticator"]',
		'[class*="two-factor"]',
	];
	for (const sel of selectors) {
		if (document.querySelector(sel)) return true;
	}
	const text = document.body ? document.body.innerText.toLowerCase() : '';
	return text.includes('verification code') || text.includes('verificatiecode');
})()`

// clickContinueJS clicks the "Doorgaan" button Magister uses for both login
// steps. Returns whether a button was found.
const clickContinueJS = `(() => {
	const buttons = document.querySelectorAll('button, input[type="submit"]');
	for (const b of buttons) {
		const label = (b.textContent || b.value || '').trim();
		if (label.includes('Doorgaan')) {
			b.click();
			return true;
		}
	}
	return false;
})()`

const errorMessageJS = `(() => {
	const selectors = ['.error', '.alert-error', '.error-message', '[class*="error"]', '[role="alert"]'];
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (el && el.textContent && el.textContent.trim()) {
			return el.textContent.trim();
		}
	}
	return 'Unknown error';
})()`

// HeadlessAuthenticator re-authenticates without user interaction by
// replaying stored credentials into the login form. Only works for schools
// without mandatory second factors.
type HeadlessAuthenticator struct {
	school   string
	creds    *CredentialStore
	dataDir  string
	lockPath string
	timeout  time.Duration
	log      *logger.Logger
}

// NewHeadlessAuthenticator creates a replay authenticator. dataDir is the
// persistent browser profile shared with the interactive flow; lockPath
// serializes profile access across processes.
func NewHeadlessAuthenticator(school string, creds *CredentialStore, dataDir, lockPath string, timeout time.Duration, log *logger.Logger) *HeadlessAuthenticator {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &HeadlessAuthenticator{
		school:   school,
		creds:    creds,
		dataDir:  dataDir,
		lockPath: lockPath,
		timeout:  timeout,
		log:      log,
	}
}

// Authenticate performs the replay login. Returns (nil, nil) when no
// credentials are stored, so callers can fall through to other strategies.
//
// Credentials are cleared when the provider explicitly rejects them, and
// only then; network failures, timeouts, and second-factor prompts keep the
// stored pair intact.
func (h *HeadlessAuthenticator) Authenticate(ctx context.Context) (*Token, error) {
	username, password, ok := h.creds.Get()
	if !ok {
		h.log.Debug("no stored credentials for %s", h.school)
		return nil, nil
	}

	release, err := AcquireAuthLock(ctx, h.lockPath, DefaultLockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := os.MkdirAll(h.dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create browser data directory: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(h.dataDir),
		chromedp.UserAgent(headlessUserAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	loginURL := fmt.Sprintf("https://%s.magister.net", h.school)
	h.log.Debug("starting headless login for %s", h.school)

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(loginURL),
		chromedp.Sleep(pageLoadDelay),
	); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}

	// A still-valid browser session skips the form entirely.
	var location string
	if err := chromedp.Run(browserCtx, chromedp.Location(&location)); err != nil {
		return nil, fmt.Errorf("browser closed: %w", err)
	}
	if strings.Contains(location, "/magister") || strings.Contains(location, "/today") {
		h.log.Debug("browser session still valid, extracting token")
		if tok, err := extractToken(browserCtx, h.school); err == nil {
			return tok, nil
		}
	}

	if err := h.fillLoginForm(browserCtx, username, password); err != nil {
		return nil, err
	}

	if err := h.awaitOutcome(browserCtx); err != nil {
		return nil, err
	}

	// Double-check the landing URL; some failures navigate back to the
	// login page without a visible error element.
	if err := chromedp.Run(browserCtx, chromedp.Location(&location)); err != nil {
		return nil, fmt.Errorf("browser closed: %w", err)
	}
	lower := strings.ToLower(location)
	if strings.Contains(lower, "/login") || strings.Contains(lower, "error") {
		var errText string
		_ = chromedp.Run(browserCtx, chromedp.Evaluate(errorMessageJS, &errText))
		h.clearCredentials()
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, errText)
	}

	if err := chromedp.Run(browserCtx, chromedp.Sleep(pageLoadDelay)); err != nil {
		return nil, fmt.Errorf("browser closed: %w", err)
	}
	tok, err := extractToken(browserCtx, h.school)
	if err != nil {
		return nil, fmt.Errorf("login completed but token extraction failed: %w", err)
	}

	if err := saveStorageState(browserCtx, filepath.Join(h.dataDir, storageStateFilename)); err != nil {
		h.log.WarningVerbose("could not save browser session state: %v", err)
	}

	h.log.Debug("headless login successful for %s", h.school)
	return tok, nil
}

func (h *HeadlessAuthenticator) fillLoginForm(ctx context.Context, username, password string) error {
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := chromedp.Run(waitCtx, chromedp.WaitVisible(usernameSelector, chromedp.ByQuery))
	cancel()
	if err != nil {
		h.log.WarningVerbose("could not find login form: %v", err)
	}

	humanDelay(minActionDelay, maxActionDelay)
	if err := chromedp.Run(ctx,
		chromedp.Clear(usernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(usernameSelector, username, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}

	humanDelay(minTypingDelay, maxTypingDelay)
	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(clickContinueJS, &clicked)); err != nil {
		return fmt.Errorf("failed to submit username: %w", err)
	}
	if clicked {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(passwordSelector, chromedp.ByQuery))
		cancel()
		if err != nil {
			return fmt.Errorf("password field never appeared: %w", err)
		}
		humanDelay(minTypingDelay, maxTypingDelay)
	}

	if err := chromedp.Run(ctx,
		chromedp.SendKeys(passwordSelector, password, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}

	humanDelay(minTypingDelay, maxTypingDelay)
	if err := chromedp.Run(ctx, chromedp.Evaluate(clickContinueJS, &clicked)); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}
	return nil
}

// awaitOutcome polls the page until the dashboard loads, an error shows, or
// the timeout passes. A timeout is escalated to ErrTwoFactorRequired when
// the page shows a second-factor prompt.
func (h *HeadlessAuthenticator) awaitOutcome(ctx context.Context) error {
	deadline := time.Now().Add(h.timeout)
	for {
		var outcome string
		if err := chromedp.Run(ctx, chromedp.Evaluate(loginOutcomeJS, &outcome)); err != nil {
			return fmt.Errorf("browser closed during login: %w", err)
		}
		if outcome == "done" {
			return nil
		}
		if errText, found := strings.CutPrefix(outcome, "error:"); found {
			return h.rejectLogin(errText)
		}
		if time.Now().After(deadline) {
			var twoFactor bool
			_ = chromedp.Run(ctx, chromedp.Evaluate(twoFactorCheckJS, &twoFactor))
			if twoFactor {
				return fmt.Errorf("%w: school %s", ErrTwoFactorRequired, h.school)
			}
			return fmt.Errorf("%w: no result after %s", ErrAuthTimeout, h.timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(locationPollInterval):
		}
	}
}

// rejectLogin handles an explicit rejection from the login page. Any visible
// error element counts; the message text is Dutch ("Gebruikersnaam of
// wachtwoord onjuist"), so no keyword matching on its content.
func (h *HeadlessAuthenticator) rejectLogin(errText string) error {
	h.clearCredentials()
	return fmt.Errorf("%w: %s", ErrInvalidCredentials, errText)
}

// clearCredentials drops the stored pair after an explicit rejection so
// repeated replays cannot lock the account.
func (h *HeadlessAuthenticator) clearCredentials() {
	if cleared, err := h.creds.Clear(); err != nil {
		h.log.WarningVerbose("failed to clear rejected credentials: %v", err)
	} else if cleared {
		h.log.Warning("Stored credentials were rejected and have been cleared")
	}
}

func humanDelay(min, max time.Duration) {
	time.Sleep(min + time.Duration(rand.Int63n(int64(max-min))))
}
