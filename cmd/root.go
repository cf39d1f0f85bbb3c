package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/api"
	"github.com/magister-tools/magctl/internal/auth"
	"github.com/magister-tools/magctl/internal/config"
	"github.com/magister-tools/magctl/internal/logger"
	"github.com/magister-tools/magctl/internal/service"
)

var (
	version string

	flagSchool  string
	flagVerbose bool
	flagNoColor bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "magctl",
	Short: "Magister command line client",
	Long: `magctl is a command line client for the Magister school platform.

It authenticates against the Magister identity provider, stores tokens in
the system keyring, and gives students and parents fast access to homework,
grades, and schedules from the terminal.

Beyond the CLI commands, magctl can run as an MCP (Model Context Protocol)
server so AI assistants can query school data, track changes between
sessions, and keep per-school agent memory.

Most commands need a school code. Set it once in the config file
(~/.config/magctl/config.yaml), export MAGISTER_SCHOOL, or pass --school.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSchool, "school", "", "School code (overrides config file and MAGISTER_SCHOOL)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
}

// newLogger creates the logger shared by all commands.
func newLogger() *logger.Logger {
	return logger.NewLogger(flagVerbose, !flagNoColor)
}

// loadConfig loads configuration with the --school flag taking precedence
// over the environment and the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagSchool)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.School == "" {
		return config.Config{}, fmt.Errorf("no school configured: pass --school, set MAGISTER_SCHOOL, or add it to the config file")
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, quiet bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if !quiet {
			fmt.Println("\nReceived interrupt signal, shutting down gracefully...")
		}
		cancel()
	}()
	return ctx, cancel
}

// newService authenticates and builds the service layer. Interactive
// commands may fall through to a browser login; background ones never do.
func newService(ctx context.Context, cfg config.Config, log *logger.Logger, interactive bool) (*service.Service, error) {
	session := auth.NewManager(cfg, log)
	token, err := session.EnsureAuthenticated(ctx, interactive)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(cfg.School, token.AccessToken, cfg.Timeout, log)
	return service.New(client, log), nil
}
