// Package cli provides the insight-rag command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/core/ports/driving"
	"github.com/insightpocket/insight-rag/internal/logger"
)

// version is set at build time with -ldflags "-X .../cli.version=...".
var version = "dev"

// ConfigStore is the configuration file behind the config commands.
type ConfigStore interface {
	driven.SettingsStore

	// Get returns the raw value stored under a dotted key.
	Get(key string) (any, bool)

	// Set validates and stores a single dotted key.
	Set(key, value string) error
}

// Services are the ports built from a loaded configuration.
type Services struct {
	Retrieval driving.RetrievalService

	// Embedder is used by doctor for connectivity checks. Nil when no
	// embedding provider is configured.
	Embedder driven.EmbeddingService

	// Location describes where the store keeps its data.
	Location string

	// Close releases the store and the embedder.
	Close func() error
}

// Dependencies builds the ports on demand, once the global flags are parsed.
type Dependencies struct {
	OpenConfig   func(path string) (ConfigStore, error)
	OpenServices func(ctx context.Context, settings *domain.Settings) (*Services, error)

	// NewReportID generates ids for CUSTOM reports stored over MCP.
	NewReportID func(prefix string) string
}

var (
	configPath string
	verbose    bool
)

var (
	deps             Dependencies
	configStore      ConfigStore
	loadedSettings   *domain.Settings
	retrievalService driving.RetrievalService
	embeddingService driven.EmbeddingService
	storeLocation    string
	closeServices    func() error
)

var rootCmd = &cobra.Command{
	Use:   "insight-rag",
	Short: "Retrieval-augmented context for business reports",
	Long: `insight-rag stores daily, custom and rule reports, embeds them in
overlapping chunks and retrieves the most similar past excerpts to build
bounded context blocks for chat answers and custom reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.insight-rag/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command with the given dependencies.
func Execute(ctx context.Context, d Dependencies) error {
	deps = d
	defer shutdown()
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func shutdown() {
	if closeServices == nil {
		return
	}
	if err := closeServices(); err != nil {
		logger.Warn("closing services: %v", err)
	}
	closeServices = nil
}

func openConfig() (ConfigStore, error) {
	if configStore != nil {
		return configStore, nil
	}
	if deps.OpenConfig == nil {
		return nil, errors.New("config store not configured")
	}
	store, err := deps.OpenConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	configStore = store
	return store, nil
}

func loadSettings() (*domain.Settings, error) {
	if loadedSettings != nil {
		return loadedSettings, nil
	}
	store, err := openConfig()
	if err != nil {
		return nil, err
	}
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", store.Path(), err)
	}
	loadedSettings = settings
	return settings, nil
}

// retrieval returns the retrieval service, building it on first use.
func retrieval(cmd *cobra.Command) (driving.RetrievalService, error) {
	if retrievalService != nil {
		return retrievalService, nil
	}
	if deps.OpenServices == nil {
		return nil, errors.New("retrieval service not configured")
	}
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	svcs, err := deps.OpenServices(cmd.Context(), settings)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if svcs.Retrieval == nil {
		return nil, errors.New("retrieval service not configured")
	}
	retrievalService = svcs.Retrieval
	embeddingService = svcs.Embedder
	storeLocation = svcs.Location
	closeServices = svcs.Close
	return retrievalService, nil
}

// recentDays returns the chat preset window from the loaded settings.
func recentDays() int {
	if loadedSettings != nil && loadedSettings.Retrieval.RecentDays > 0 {
		return loadedSettings.Retrieval.RecentDays
	}
	return domain.DefaultRecentDays
}
