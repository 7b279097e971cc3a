package cmd

import (
	"errors"
	"fmt"
	"helincat/catalog"
	"helincat/db"
	"helincat/disk/wal"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "helincat",
	Short: "Inspect and change the table catalog of a helincat database",
	Long: `helincat opens a database directory, replays its ddl recovery log and runs
catalog operations against it: create, drop and alter tables, list and describe
them, sync table files and compact the recovery log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is called by main.go. The exit status is the result code of the failed operation.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return int(catalog.RCOf(err))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./helincat.yaml)")
	rootCmd.PersistentFlags().String("dir", ".", "directory that holds the database")
	rootCmd.PersistentFlags().String("name", "helincat", "database name, its files live in <dir>/<name>")
	rootCmd.PersistentFlags().Bool("no-sync", false, "do not fsync the recovery log after each record")
	rootCmd.PersistentFlags().String("log-serde", "binary", "recovery log record encoding: binary, json")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	mustBindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	mustBindPFlag("name", rootCmd.PersistentFlags().Lookup("name"))
	mustBindPFlag("no_sync", rootCmd.PersistentFlags().Lookup("no-sync"))
	mustBindPFlag("log_serde", rootCmd.PersistentFlags().Lookup("log-serde"))
	mustBindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("helincat")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("HELINCAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: could not read config file: %v\n", err)
		}
	}
}

func setupLogger() error {
	level := viper.GetString("log_level")
	format := viper.GetString("log_format")

	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("%w: unknown log level: %q (expected debug, info, warn, error)", catalog.ErrInvalidArgument, level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("%w: unknown log format: %q (expected text, json)", catalog.ErrInvalidArgument, format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("viper.BindPFlag(%q): %v", key, err))
	}
}

func dbOptions() (db.Options, error) {
	opts := db.DefaultOptions()
	opts.Dir = viper.GetString("dir")
	opts.Name = viper.GetString("name")
	opts.NoSync = viper.GetBool("no_sync")
	opts.SyncInterval = 0
	opts.Logger = slog.Default()

	switch serde := strings.ToLower(viper.GetString("log_serde")); serde {
	case "binary":
		opts.SerDe = wal.NewBinarySerDe()
	case "json":
		opts.SerDe = wal.NewJsonSerDe()
	default:
		return db.Options{}, fmt.Errorf("%w: unknown log serde %q (expected binary, json)", catalog.ErrInvalidArgument, serde)
	}
	return opts, nil
}

// withDB opens the database, runs fn and closes it again. A close failure is reported only if fn succeeded.
func withDB(fn func(d *db.DB) error) (err error) {
	opts, err := dbOptions()
	if err != nil {
		return err
	}

	d, err := db.OpenDB(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(d)
}
