package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/notify"
	"github.com/magister-tools/magctl/internal/tracker"
)

var (
	checkReset  bool
	checkNotify bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for new grades, schedule changes, and homework deadlines",
	Long: `Run one polling cycle against the tracked state.

The first run establishes a baseline and reports nothing. Subsequent runs
report what changed since the previous check. With --notify, detected
changes also go out as desktop notifications; this is what a cron job or
systemd timer should call.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkReset, "reset", false, "Discard tracked state and start a fresh baseline")
	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "Send desktop notifications for detected changes")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	tr := tracker.New(cfg.StatePath())
	if checkReset {
		if err := tr.Reset(); err != nil {
			return err
		}
		log.Success("Tracked state reset, the next check starts a fresh baseline")
		return nil
	}

	ctx, cancel := signalContext(cmd.Context(), false)
	defer cancel()

	svc, err := newService(ctx, cfg, log, false)
	if err != nil {
		return err
	}

	changes, err := svc.CheckChanges(ctx, tr, cfg.Notifications)
	if err != nil {
		return fmt.Errorf("change check failed: %w", err)
	}

	if len(changes) == 0 {
		log.Info("No changes detected")
		return nil
	}

	for _, change := range changes {
		fmt.Printf("%-16s %s: %s\n", change.Type, change.Subject, change.Description)
	}

	if checkNotify {
		sent := notify.New(cfg.Notifications, log).NotifyAll(changes)
		log.InfoVerbose("Sent %d of %d notifications", sent, len(changes))
	}
	return nil
}
