// Package config loads and validates magctl settings.
//
// Precedence: explicit values (flags) > MAGISTER_* environment variables >
// the YAML config file > built-in defaults. Config values are immutable
// after Load; commands construct one Config and pass it down.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var schoolCodeRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Config holds all runtime settings.
type Config struct {
	// School is the validated, lowercased institution code.
	School string

	// Username is an optional auto-login hint.
	Username string

	// Timeout bounds individual HTTP requests.
	Timeout time.Duration

	// Headless controls whether replay logins run without a visible window.
	Headless bool

	// CacheDir holds browser profiles, tracker state, and agent context.
	CacheDir string

	// AuthTimeout bounds interactive browser logins.
	AuthTimeout time.Duration

	// AutoBrowserAuth allows the MCP server to launch a browser login.
	AutoBrowserAuth bool

	// Notifications configures the desktop notification sink.
	Notifications NotificationConfig
}

// NotificationConfig controls which change families notify and when.
type NotificationConfig struct {
	GradesEnabled         bool
	ScheduleEnabled       bool
	HomeworkEnabled       bool
	HomeworkReminderHours int
	// QuietHoursStart/End are hours of day (0-23). A window that wraps
	// midnight (start > end) is valid. Both -1 disables quiet hours.
	QuietHoursStart int
	QuietHoursEnd   int
}

// fileConfig is the on-disk YAML schema. Durations are plain seconds and
// booleans are pointers so an absent key leaves the default untouched.
type fileConfig struct {
	School          string             `yaml:"school"`
	Username        string             `yaml:"username"`
	TimeoutSeconds  int                `yaml:"timeout"`
	Headless        *bool              `yaml:"headless"`
	CacheDir        string             `yaml:"cache_dir"`
	AuthTimeoutSecs int                `yaml:"auth_timeout"`
	AutoBrowserAuth *bool              `yaml:"auto_browser_auth"`
	Notifications   *fileNotifications `yaml:"notifications"`
}

type fileNotifications struct {
	GradesEnabled         *bool `yaml:"grades_enabled"`
	ScheduleEnabled       *bool `yaml:"schedule_enabled"`
	HomeworkEnabled       *bool `yaml:"homework_enabled"`
	HomeworkReminderHours *int  `yaml:"homework_reminder_hours"`
	QuietHoursStart       *int  `yaml:"quiet_hours_start"`
	QuietHoursEnd         *int  `yaml:"quiet_hours_end"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Timeout:         30 * time.Second,
		Headless:        true,
		CacheDir:        filepath.Join(home, ".config", "magctl"),
		AuthTimeout:     5 * time.Minute,
		AutoBrowserAuth: true,
		Notifications: NotificationConfig{
			GradesEnabled:         true,
			ScheduleEnabled:       true,
			HomeworkEnabled:       true,
			HomeworkReminderHours: 24,
			QuietHoursStart:       22,
			QuietHoursEnd:         7,
		},
	}
}

// ConfigFilePath returns the YAML config file location.
func ConfigFilePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "magctl", "config.yaml")
}

// Load builds a Config from defaults, the config file, and environment.
// The school argument (usually from a flag) wins over all other sources;
// pass "" to fall back to MAGISTER_SCHOOL or the config file.
func Load(school string) (Config, error) {
	return load(school, ConfigFilePath())
}

func load(school, path string) (Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		// A malformed config file is ignored rather than fatal, the
		// same as a missing one.
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err == nil {
			applyFile(&cfg, fc)
		}
	}

	applyEnv(&cfg)

	if school != "" {
		cfg.School = school
	}
	if cfg.School != "" {
		normalized, err := ValidateSchoolCode(cfg.School)
		if err != nil {
			return Config{}, err
		}
		cfg.School = normalized
	}

	if cfg.Timeout < 5*time.Second || cfg.Timeout > 120*time.Second {
		return Config{}, fmt.Errorf("timeout %s out of range (5s-120s)", cfg.Timeout)
	}
	if cfg.CacheDir == "" {
		return Config{}, fmt.Errorf("cache directory not set")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
		return Config{}, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.School != "" {
		cfg.School = fc.School
	}
	if fc.Username != "" {
		cfg.Username = fc.Username
	}
	if fc.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(fc.TimeoutSeconds) * time.Second
	}
	if fc.Headless != nil {
		cfg.Headless = *fc.Headless
	}
	if fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
	}
	if fc.AuthTimeoutSecs > 0 {
		cfg.AuthTimeout = time.Duration(fc.AuthTimeoutSecs) * time.Second
	}
	if fc.AutoBrowserAuth != nil {
		cfg.AutoBrowserAuth = *fc.AutoBrowserAuth
	}
	if fn := fc.Notifications; fn != nil {
		if fn.GradesEnabled != nil {
			cfg.Notifications.GradesEnabled = *fn.GradesEnabled
		}
		if fn.ScheduleEnabled != nil {
			cfg.Notifications.ScheduleEnabled = *fn.ScheduleEnabled
		}
		if fn.HomeworkEnabled != nil {
			cfg.Notifications.HomeworkEnabled = *fn.HomeworkEnabled
		}
		if fn.HomeworkReminderHours != nil {
			cfg.Notifications.HomeworkReminderHours = *fn.HomeworkReminderHours
		}
		if fn.QuietHoursStart != nil {
			cfg.Notifications.QuietHoursStart = *fn.QuietHoursStart
		}
		if fn.QuietHoursEnd != nil {
			cfg.Notifications.QuietHoursEnd = *fn.QuietHoursEnd
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MAGISTER_SCHOOL"); v != "" {
		cfg.School = v
	}
	if v := os.Getenv("MAGISTER_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MAGISTER_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("MAGISTER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = b
		}
	}
	if v := os.Getenv("MAGISTER_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
}

// ValidateSchoolCode checks an institution code and returns its normalized
// (lowercased) form. Only letters, digits and hyphens are allowed, at most
// 50 characters. The restriction keeps the code safe to interpolate into
// hostnames.
func ValidateSchoolCode(school string) (string, error) {
	if school == "" {
		return "", fmt.Errorf("school code cannot be empty")
	}
	if !schoolCodeRe.MatchString(school) {
		return "", fmt.Errorf("invalid school code format: %q", school)
	}
	if len(school) > 50 {
		return "", fmt.Errorf("school code too long (max 50 characters)")
	}
	return strings.ToLower(school), nil
}

// BrowserDataDir returns the persistent browser profile directory for the
// configured school.
func (c Config) BrowserDataDir() string {
	return filepath.Join(c.CacheDir, "browser_data", c.School)
}

// AuthLockPath returns the cross-process auth lock file for the configured
// school.
func (c Config) AuthLockPath() string {
	return filepath.Join(c.BrowserDataDir(), ".auth.lock")
}

// StatePath returns the change-tracker state file for the configured school.
func (c Config) StatePath() string {
	return filepath.Join(c.CacheDir, fmt.Sprintf("state_%s.json", c.School))
}

// ContextDir returns the agent context directory for the configured school.
func (c Config) ContextDir() string {
	return filepath.Join(c.CacheDir, "contexts", c.School)
}

// Save writes user-editable settings back to the config file.
func Save(cfg Config) error {
	fc := fileConfig{
		School:          cfg.School,
		Username:        cfg.Username,
		TimeoutSeconds:  int(cfg.Timeout / time.Second),
		Headless:        &cfg.Headless,
		CacheDir:        cfg.CacheDir,
		AuthTimeoutSecs: int(cfg.AuthTimeout / time.Second),
		AutoBrowserAuth: &cfg.AutoBrowserAuth,
		Notifications: &fileNotifications{
			GradesEnabled:         &cfg.Notifications.GradesEnabled,
			ScheduleEnabled:       &cfg.Notifications.ScheduleEnabled,
			HomeworkEnabled:       &cfg.Notifications.HomeworkEnabled,
			HomeworkReminderHours: &cfg.Notifications.HomeworkReminderHours,
			QuietHoursStart:       &cfg.Notifications.QuietHoursStart,
			QuietHoursEnd:         &cfg.Notifications.QuietHoursEnd,
		},
	}

	path := ConfigFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
