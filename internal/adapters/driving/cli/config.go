package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and edit the configuration file.

The file is TOML by default (~/.insight-rag/config.toml) or YAML when the
--config path ends in .yaml or .yml. API keys may also come from the
OPENAI_API_KEY and GEMINI_API_KEY environment variables, and the Postgres
DSN from DATABASE_URL.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a config value",
	Long: `Sets a single dotted key, for example:

  insight-rag config set storage.backend postgres
  insight-rag config set retrieval.min_similarity 0.6
  insight-rag config set embedding.timeout 45s

When the value of embedding.api_key is omitted it is read from the
terminal without echo.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a config value as stored in the file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		cmd.Printf("%s %v\n", paint(cmd, errorStyle, "Invalid configuration:"), err)
		cmd.Println("Run 'insight-rag config set' to fix configuration issues.")
		return err
	}

	cmd.Println(paint(cmd, headingStyle, "Current Settings"))
	cmd.Printf("File: %s\n", store.Path())
	cmd.Println()

	section := func(name string) {
		cmd.Println(paint(cmd, headingStyle, "["+name+"]"))
	}

	section("Storage")
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend)
	if settings.Storage.DataDir != "" {
		cmd.Printf("  Data dir: %s\n", settings.Storage.DataDir)
	}
	if settings.Storage.Backend == domain.StoragePostgres {
		cmd.Printf("  DSN: %s\n", maskDSN(settings.Storage.DSN))
	}
	cmd.Println()

	e := settings.Embedding
	section("Embedding")
	cmd.Printf("  Provider: %s\n", e.Provider.Description())
	cmd.Printf("  Model: %s (%d dimensions)\n", e.Model, e.Dimensions)
	if e.BaseURL != "" || e.Provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", e.BaseURL)
	}
	if e.Provider.RequiresAPIKey() {
		if e.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(e.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	cmd.Printf("  Timeout: %s, batch size %d, concurrency %d\n", e.Timeout, e.BatchSize, e.Concurrency)
	if e.RequestsPerSecond > 0 {
		cmd.Printf("  Rate limit: %.1f req/s\n", e.RequestsPerSecond)
	}
	status := paint(cmd, successStyle, "configured")
	if !e.IsConfigured() {
		status = paint(cmd, warningStyle, "not configured")
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	section("Chunking")
	cmd.Printf("  Max chars: %d, overlap: %d\n", settings.Chunking.MaxChars, settings.Chunking.OverlapChars)
	cmd.Printf("  Insert mode: %s\n", settings.Chunking.InsertMode)
	cmd.Println()

	r := settings.Retrieval
	section("Retrieval")
	cmd.Printf("  Top K: %d, min similarity: %.2f\n", r.TopK, r.MinSimilarity)
	cmd.Printf("  Embed timeout: %s, search timeout: %s\n", r.EmbedTimeout, r.SearchTimeout)
	cmd.Printf("  Recent days: %d\n", r.RecentDays)
	cmd.Println()

	c := settings.Context
	section("Context")
	cmd.Printf("  Max chars: %d, excerpt chars: %d, max excerpts: %d\n", c.MaxChars, c.ExcerptChars, c.MaxExcerpts)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	cmd.Println(store.Path())
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(store.Path()); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", store.Path())
	}

	settings := domain.DefaultSettings()
	if err := store.Save(&settings); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	loadedSettings = nil

	cmd.Printf("Wrote default settings to %s\n", store.Path())
	if !settings.Embedding.IsConfigured() {
		cmd.Printf("Set an API key with 'insight-rag config set embedding.api_key' or %s.\n", envHint(settings.Embedding.Provider))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}

	key := args[0]
	var value string
	switch {
	case len(args) == 2:
		value = args[1]
	case key == "embedding.api_key":
		cmd.Print("API key: ")
		value = readPassword()
		cmd.Println()
	default:
		return fmt.Errorf("%w: a value is required for %s", domain.ErrInvalidInput, key)
	}

	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	loadedSettings = nil

	if key == "embedding.api_key" {
		value = maskAPIKey(value)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}

	value, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("%w: %s is not set", domain.ErrNotFound, args[0])
	}
	if args[0] == "embedding.api_key" {
		s, _ := value.(string)
		value = maskAPIKey(s)
	}
	cmd.Println(value)
	return nil
}

func envHint(p domain.AIProvider) string {
	switch p {
	case domain.AIProviderGemini:
		return "the GEMINI_API_KEY environment variable"
	default:
		return "the OPENAI_API_KEY environment variable"
	}
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	// Try to read password without echo
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a postgres:// connection string.
func maskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "****"
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
