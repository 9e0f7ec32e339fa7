// Package cmd provides the CLI commands for stepflow.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xvierd/stepflow/internal/adapters/ai"
	"github.com/xvierd/stepflow/internal/adapters/git"
	"github.com/xvierd/stepflow/internal/adapters/notification"
	"github.com/xvierd/stepflow/internal/adapters/storage"
	"github.com/xvierd/stepflow/internal/config"
	"github.com/xvierd/stepflow/internal/logging"
	"github.com/xvierd/stepflow/internal/ports"
	"github.com/xvierd/stepflow/internal/services"
)

const (
	// skipServices marks commands that only touch the config file.
	skipServices = "skip-services"

	shutdownTimeout = 10 * time.Second
)

var (
	// Version info (set at build time via ldflags)
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"

	// Global flags
	dbPath     string
	configPath string
	jsonOutput bool
	verbose    bool

	// Global dependencies
	appConfig       *config.Config
	logger          zerolog.Logger
	logCloser       io.Closer
	storageAdapter  ports.Storage
	syncer          *services.Syncer
	settings        *config.Provider
	notifier        *notification.Notifier
	taskService     *services.TaskService
	focusController *services.FocusController
	breakService    *services.BreakOrchestrator
	stateService    *services.StateService
	cleanupService  *services.CleanupService
	unloadGuard     *services.UnloadGuard
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stepflow",
	Short: "stepflow - focus sessions that walk a task step by step",
	Long: `stepflow runs timed focus sessions bound to a task broken into small steps.
Tick steps off as you go; finishing the last one ends the session early.

Run "stepflow start" to pick a task and begin.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, skip := cmd.Annotations[skipServices]; skip {
			return nil
		}
		return initializeServices(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return cleanupServices()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_ = cleanupServices()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the database file (default: ~/.stepflow/stepflow.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default: ~/.stepflow/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("stepflow {{.Version}}\n")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(streakCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

// initializeServices sets up all the required services and adapters.
func initializeServices(cmd *cobra.Command) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	appConfig, err = config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err = logging.New(appConfig.Log, logging.Options{
		Verbose: verbose,
		Console: verbose,
		DataDir: appConfig.Storage.DataDir,
	})
	if err != nil {
		return err
	}
	log.Logger = logger

	if dbPath == "" {
		dbPath = config.GetDBPath(appConfig)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	storageAdapter, err = storage.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	provider := config.NewProvider(path, appConfig)
	if err := provider.Watch(); err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("config file not watched")
	}
	settings = provider
	notifier = notification.New(appConfig.Notifications.Enabled)
	syncer = services.NewSyncer(logger, 1, 0)

	taskService = services.NewTaskService(storageAdapter, syncer, logger)
	if appConfig.AI.APIKey != "" {
		breakdowner := ai.New(ai.Config{
			Endpoint: appConfig.AI.Endpoint,
			Model:    appConfig.AI.Model,
			APIKey:   appConfig.AI.APIKey,
			Timeout:  time.Duration(appConfig.AI.Timeout),
		}, nil)
		taskService.SetBreakdowner(breakdowner, time.Duration(appConfig.AI.Timeout))
	}

	workDir, _ := os.Getwd()
	focusController = services.NewFocusController(storageAdapter, taskService, syncer, settings, logger,
		services.WithNotifier(notifier),
		services.WithGitDetector(git.NewDetector(), workDir),
	)
	breakService = services.NewBreakOrchestrator(focusController, taskService, settings, notifier, logger)
	breakService.SetStateStore(storageAdapter.State(), syncer)
	stateService = services.NewStateService(storageAdapter, taskService, focusController, breakService)
	cleanupService = services.NewCleanupService(storageAdapter, nil, logger)
	unloadGuard = services.NewUnloadGuard(focusController, services.NewStoreBeacon(storageAdapter, syncer, nil))

	logger.Debug().Str("command", cmd.Name()).Str("db", dbPath).Msg("services ready")
	return nil
}

// cleanupServices flushes pending writes and closes all resources.
func cleanupServices() error {
	var firstErr error
	if syncer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := syncer.Shutdown(ctx); err != nil {
			firstErr = err
		}
		cancel()
		syncer = nil
	}
	if storageAdapter != nil {
		if err := storageAdapter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		storageAdapter = nil
	}
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
	return firstErr
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
