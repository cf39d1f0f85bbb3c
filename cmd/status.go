package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/auth"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the authentication status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	fmt.Printf("School: %s\n", cfg.School)

	token, err := auth.NewTokenStore(cfg.School).Get()
	if err != nil {
		return err
	}
	if token == nil {
		log.Warning("Not logged in, run 'magctl login' first")
	} else {
		if token.IsExpired() {
			log.Warning("Session expired")
		} else {
			log.Success("Logged in")
		}
		if token.PersonName != "" {
			fmt.Printf("Student: %s\n", token.PersonName)
		}
		if remaining, ok := token.TimeUntilExpiry(); ok {
			fmt.Printf("Token expires in: %s\n", remaining.Round(time.Second))
		}
		fmt.Printf("Refresh token: %v\n", token.HasRefreshToken())

		if claims, err := auth.PeekClaims(token.AccessToken); err == nil {
			if claims.Issuer != "" {
				fmt.Printf("Issuer: %s\n", claims.Issuer)
			}
			if claims.Subject != "" {
				fmt.Printf("Subject: %s\n", claims.Subject)
			}
		}
	}

	if auth.NewCredentialStore(cfg.School).Has() {
		fmt.Println("Stored credentials: yes")
	} else {
		fmt.Println("Stored credentials: no")
	}
	return nil
}
