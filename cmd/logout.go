package cmd

import (
	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/auth"
)

var logoutClearCredentials bool

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session token",
	Long: `Delete the session token from the system keyring.

Stored login credentials survive a logout so a later 'magctl login
--headless-replay' still works; pass --credentials to remove those too.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)

	logoutCmd.Flags().BoolVar(&logoutClearCredentials, "credentials", false, "Also remove stored login credentials")
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	existed, err := auth.NewTokenStore(cfg.School).Delete()
	if err != nil {
		return err
	}
	if existed {
		log.Success("Logged out of %s", cfg.School)
	} else {
		log.Info("No session was stored for %s", cfg.School)
	}

	if logoutClearCredentials {
		cleared, err := auth.NewCredentialStore(cfg.School).Clear()
		if err != nil {
			return err
		}
		if cleared {
			log.Success("Stored credentials removed")
		}
	}
	return nil
}
