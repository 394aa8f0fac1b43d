package driven

import "github.com/insightpocket/insight-rag/internal/core/domain"

// SettingsStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and type conversion.
type SettingsStore interface {
	// Load reads the configuration with defaults applied.
	// A missing file yields the defaults.
	Load() (*domain.Settings, error)

	// Save persists the settings.
	Save(settings *domain.Settings) error

	// Path returns the configuration file path.
	Path() string
}
