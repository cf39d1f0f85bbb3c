package auth

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/magister-tools/magctl/internal/config"
	"github.com/magister-tools/magctl/internal/logger"
)

// Manager ties the individual strategies into one session chain. Recovery
// order, cheapest first:
//
//  1. the stored token, when still valid
//  2. the refresh_token grant
//  3. headless credential replay
//  4. an interactive browser login, when allowed and a display exists
type Manager struct {
	school      string
	store       *TokenStore
	creds       *CredentialStore
	refresher   *Refresher
	headless    *HeadlessAuthenticator
	browser     *BrowserAuthenticator
	autoBrowser bool
	log         *logger.Logger
}

// NewManager wires a session manager from configuration.
func NewManager(cfg config.Config, log *logger.Logger) *Manager {
	store := NewTokenStore(cfg.School)
	creds := NewCredentialStore(cfg.School)
	return &Manager{
		school:      cfg.School,
		store:       store,
		creds:       creds,
		refresher:   NewRefresher(cfg.School, store, log),
		headless:    NewHeadlessAuthenticator(cfg.School, creds, cfg.BrowserDataDir(), cfg.AuthLockPath(), cfg.AuthTimeout, log),
		browser:     NewBrowserAuthenticator(cfg.School, cfg.BrowserDataDir(), cfg.AuthTimeout, log),
		autoBrowser: cfg.AutoBrowserAuth,
		log:         log,
	}
}

// Store exposes the underlying token store.
func (m *Manager) Store() *TokenStore { return m.store }

// Credentials exposes the underlying credential store.
func (m *Manager) Credentials() *CredentialStore { return m.creds }

// Refresher exposes the underlying token refresher.
func (m *Manager) Refresher() *Refresher { return m.refresher }

// EnsureAuthenticated returns a usable token, walking the recovery chain as
// far as interactive == true allows. Without interactive the chain stops
// before launching a browser.
func (m *Manager) EnsureAuthenticated(ctx context.Context, interactive bool) (*Token, error) {
	tok, err := m.store.GetValid()
	if err != nil {
		return nil, err
	}
	if tok != nil {
		return tok, nil
	}

	stored, err := m.store.Get()
	if err != nil {
		return nil, err
	}

	if stored != nil && stored.HasRefreshToken() {
		m.log.Debug("token expired, attempting refresh")
		if refreshed, err := m.refresher.Refresh(ctx); err == nil {
			return refreshed, nil
		} else {
			m.log.InfoVerbose("token refresh failed: %v", err)
		}
	}

	if m.creds.Has() {
		m.log.Debug("attempting headless credential replay")
		tok, err := m.headless.Authenticate(ctx)
		if err != nil {
			m.log.InfoVerbose("headless login failed: %v", err)
		} else if tok != nil {
			if err := m.store.Save(tok); err != nil {
				return nil, err
			}
			return tok, nil
		}
	}

	if interactive && m.autoBrowser && HasGraphicalSession() {
		m.log.Info("Session expired, opening browser to re-authenticate")
		tok, err := m.browser.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.store.Save(tok); err != nil {
			return nil, err
		}
		return tok, nil
	}

	if stored != nil {
		return nil, fmt.Errorf("session for %s: %w", m.school, ErrTokenExpired)
	}
	return nil, fmt.Errorf("no session for %s, run 'magctl login' first: %w", m.school, ErrNotAuthenticated)
}

// OpenBrowser opens url in the system default browser. Best effort; callers
// always print the URL too.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
