// Package cmd implements the sessionstate command line.
package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
	serrors "github.com/randalmurphal/sessionstate/pkg/sessionstate/errors"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// Configuration keys.
const (
	keyStorePath   = "store.path"
	keyBusyTimeout = "store.busy_timeout"
	keyRetention   = "retention.days"
	keyLogLevel    = "log.level"
	keyLogFormat   = "log.format"

	keyRetryAttempts   = "store.retry.max_attempts"
	keyRetryBackoff    = "store.retry.initial_backoff"
	keyRetryMaxBackoff = "store.retry.max_backoff"
)

const defaultStorePath = "sessionstate.db"

var (
	cfgFile   string
	dbPath    string
	logLevel  string
	logFormat string

	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "sessionstate",
	Short: "Inspect and manage persisted workflow sessions",
	Long: `sessionstate manages the session and checkpoint database that long-running
workflows use to survive restarts.

Every command opens the database, performs one operation and exits. Output
goes to stdout; errors go to stderr with a non-zero exit code.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports any error on stderr.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// SetVersion records build information for the version command.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle (initConfig refers to rootCmd).
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initConfig()
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./.sessionstate.yaml or $HOME/.sessionstate.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultStorePath,
		"path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".sessionstate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}

	viper.SetDefault(keyStorePath, defaultStorePath)
	viper.SetDefault(keyBusyTimeout, store.DefaultBusyTimeout)
	viper.SetDefault(keyRetention, sessionstate.DefaultRetentionDays)
	viper.SetDefault(keyLogLevel, "warn")
	viper.SetDefault(keyLogFormat, "auto")
	viper.SetDefault(keyRetryAttempts, serrors.DefaultRetry.MaxAttempts)
	viper.SetDefault(keyRetryBackoff, serrors.DefaultRetry.InitialBackoff)
	viper.SetDefault(keyRetryMaxBackoff, serrors.DefaultRetry.MaxBackoff)

	// Bind flags to viper (errors are nil when flag exists)
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag(keyStorePath, flags.Lookup("db"))
	_ = viper.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = viper.BindPFlag(keyLogFormat, flags.Lookup("log-format"))

	viper.SetEnvPrefix("SESSIONSTATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	for _, key := range []string{keyBusyTimeout, keyRetryBackoff, keyRetryMaxBackoff} {
		if d := durationSetting(key); d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", key, d)
		}
	}
	if n := viper.GetInt(keyRetryAttempts); n < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", keyRetryAttempts, n)
	}
	if days := viper.GetInt(keyRetention); days < 0 {
		return fmt.Errorf("%s must not be negative, got %d", keyRetention, days)
	}
	return nil
}

// busyTimeout returns the configured SQLite busy timeout.
func busyTimeout() time.Duration {
	return durationSetting(keyBusyTimeout)
}

// retryConfig returns how the store retries calls that hit a locked
// database.
func retryConfig() serrors.RetryConfig {
	return serrors.NewRetryConfig(
		serrors.WithMaxAttempts(viper.GetInt(keyRetryAttempts)),
		serrors.WithInitialBackoff(durationSetting(keyRetryBackoff)),
		serrors.WithMaxBackoff(durationSetting(keyRetryMaxBackoff)),
	)
}

// durationSetting reads key as either a duration string or a number of
// milliseconds.
func durationSetting(key string) time.Duration {
	switch v := viper.Get(key).(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	case string:
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		return viper.GetDuration(key)
	default:
		return viper.GetDuration(key)
	}
}
