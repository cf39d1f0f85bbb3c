package cmd

import (
	"fmt"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const updateRepo = "magister-tools/magctl"

// selfUpdateCmd represents the selfupdate command
var selfUpdateCmd = &cobra.Command{
	Use:   "selfupdate",
	Short: "Update magctl to the latest release",
	RunE:  runSelfUpdate,
}

func init() {
	rootCmd.AddCommand(selfUpdateCmd)
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	log := newLogger()

	if version == "" || version == "dev" {
		return fmt.Errorf("cannot self-update a development build, install a released binary first")
	}

	latest, found, err := selfupdate.DetectLatest(cmd.Context(), selfupdate.ParseSlug(updateRepo))
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", updateRepo)
	}
	if latest.LessOrEqual(version) {
		log.Success("Already up to date (version %s)", version)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not locate executable: %w", err)
	}

	log.Info("Updating from %s to %s...", version, latest.Version())
	if err := selfupdate.UpdateTo(cmd.Context(), latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	log.Success("Updated to version %s", latest.Version())
	return nil
}
