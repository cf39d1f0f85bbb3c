package cmd

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/auth"
)

// credentialsCmd represents the credentials command group
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage stored login credentials",
	Long: `Store, inspect, or remove the login credentials used for headless
authentication. Credentials live in the system keyring, never on disk.`,
}

var credentialsStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Store login credentials in the system keyring",
	RunE:  runCredentialsStore,
}

var credentialsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored login credentials",
	RunE:  runCredentialsClear,
}

var credentialsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether credentials are stored",
	RunE:  runCredentialsStatus,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsStoreCmd)
	credentialsCmd.AddCommand(credentialsClearCmd)
	credentialsCmd.AddCommand(credentialsStatusCmd)
}

func runCredentialsStore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	rl, err := readline.New("Gebruikersnaam: ")
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	defer func() { _ = rl.Close() }()

	username := cfg.Username
	if username == "" {
		line, err := rl.Readline()
		if err != nil {
			return err
		}
		username = strings.TrimSpace(line)
	} else {
		log.Info("Using configured username %s", username)
	}

	password, err := rl.ReadPassword("Wachtwoord: ")
	if err != nil {
		return err
	}

	store := auth.NewCredentialStore(cfg.School)
	if err := store.Store(username, string(password)); err != nil {
		return err
	}
	log.Success("Credentials stored for %s", cfg.School)
	log.Info("Headless login is now available: magctl login --headless-replay")
	return nil
}

func runCredentialsClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	cleared, err := auth.NewCredentialStore(cfg.School).Clear()
	if err != nil {
		return err
	}
	if cleared {
		log.Success("Credentials removed for %s", cfg.School)
	} else {
		log.Info("No stored credentials for %s", cfg.School)
	}
	return nil
}

func runCredentialsStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := auth.NewCredentialStore(cfg.School)
	if username, _, ok := store.Get(); ok {
		fmt.Printf("Credentials stored for %s (user %s)\n", cfg.School, username)
	} else {
		fmt.Printf("No credentials stored for %s\n", cfg.School)
	}
	return nil
}
