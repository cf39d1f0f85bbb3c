package cmd

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/auth"
	"github.com/magister-tools/magctl/internal/logger"
)

var (
	loginHeadless bool
	loginPKCE     bool
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the Magister platform",
	Long: `Log in and store the session token in the system keyring.

By default a browser window opens on the Magister login page; the session
token is captured once the dashboard loads. With stored credentials
(see 'magctl credentials store'), --headless-replay logs in without a
visible browser.

The --pkce flow is fully manual: it prints the authorization URL, you
complete the login in any browser, and paste the redirect URL back. Use
it on machines where magctl cannot drive a browser at all.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().BoolVar(&loginHeadless, "headless-replay", false, "Log in by replaying stored credentials without a visible browser")
	loginCmd.Flags().BoolVar(&loginPKCE, "pkce", false, "Manual PKCE flow: print the authorization URL and paste the redirect URL back")
	loginCmd.MarkFlagsMutuallyExclusive("headless-replay", "pkce")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, cancel := signalContext(cmd.Context(), false)
	defer cancel()

	if loginPKCE {
		return runPKCELogin(cmd, cfg.School, log)
	}

	session := auth.NewManager(cfg, log)

	if loginHeadless {
		if !session.Credentials().Has() {
			return fmt.Errorf("no stored credentials for %s, run 'magctl credentials store' first", cfg.School)
		}
		headless := auth.NewHeadlessAuthenticator(cfg.School, session.Credentials(), cfg.BrowserDataDir(), cfg.AuthLockPath(), cfg.AuthTimeout, log)
		token, err := headless.Authenticate(ctx)
		if err != nil {
			return fmt.Errorf("headless login failed: %w", err)
		}
		if token == nil {
			return fmt.Errorf("headless login produced no token")
		}
		if err := session.Store().Save(token); err != nil {
			return err
		}
		log.Success("Logged in to %s", cfg.School)
		return nil
	}

	browser := auth.NewBrowserAuthenticator(cfg.School, cfg.BrowserDataDir(), cfg.AuthTimeout, log)
	token, err := browser.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("browser login failed: %w", err)
	}
	if err := session.Store().Save(token); err != nil {
		return err
	}
	log.Success("Logged in to %s", cfg.School)
	return nil
}

func runPKCELogin(cmd *cobra.Command, school string, log *logger.Logger) error {
	flow, err := auth.NewPKCEFlow(school)
	if err != nil {
		return err
	}

	authURL := flow.AuthorizationURL()
	log.Info("Open this URL in a browser and complete the login:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	if err := auth.OpenBrowser(authURL); err == nil {
		log.Info("A browser window should have opened automatically.")
	}

	rl, err := readline.New("Paste the redirect URL here: ")
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	defer func() { _ = rl.Close() }()

	line, err := rl.Readline()
	if err != nil {
		return fmt.Errorf("failed to read redirect URL: %w", err)
	}

	code, err := flow.ExtractCode(strings.TrimSpace(line))
	if err != nil {
		return err
	}

	token, err := flow.ExchangeCode(cmd.Context(), code)
	if err != nil {
		return fmt.Errorf("code exchange failed: %w", err)
	}
	if err := auth.NewTokenStore(school).Save(token); err != nil {
		return err
	}
	log.Success("Logged in to %s", school)
	return nil
}
