// ABOUTME: Entry point for the chowline conversation server
// ABOUTME: Wires the store, tool pack, upstream clients, orchestrator, and gateway

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/chowline/internal/assistant"
	"github.com/2389/chowline/internal/config"
	"github.com/2389/chowline/internal/gateway"
	"github.com/2389/chowline/internal/imagery"
	"github.com/2389/chowline/internal/session"
	"github.com/2389/chowline/internal/store"
	"github.com/2389/chowline/internal/tools"
	"github.com/2389/chowline/internal/upstream"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _                   _ _
   ___ | |__   _____      _| (_)_ __   ___
  / __|| '_ \ / _ \ \ /\ / / | | '_ \ / _ \
 | (__ | | | | (_) \ V  V /| | | | | |  __/
  \___||_| |_|\___/ \_/\_/ |_|_|_| |_|\___|
`

// getConfigPath returns the path to the server config file.
// Priority: CHOWLINE_CONFIG env var > XDG_CONFIG_HOME/chowline/server.yaml > ~/.config/chowline/server.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHOWLINE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chowline", "server.yaml")
}

// getDataPath returns the path to the chowline data directory.
// Priority: XDG_DATA_HOME/chowline > ~/.local/share/chowline
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "chowline")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chowline <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the conversation server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Model:     %s\n", cfg.Assistant.Model)
	fmt.Println()

	logger.Info("starting chowline",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	registry := session.NewRegistry(logger)
	broadcaster := session.NewBroadcaster(registry, logger)

	placesClient := upstream.NewPlacesClient(
		cfg.Upstream.Places.BaseURL, cfg.Upstream.Places.APIKey, cfg.Upstream.Places.RateRPS, logger)
	reviewsClient := upstream.NewReviewsClient(
		cfg.Upstream.Reviews.BaseURL, cfg.Upstream.Reviews.APIKey, logger)
	webSearchClient := upstream.NewWebSearchClient(
		cfg.Upstream.WebSearch.BaseURL, cfg.Upstream.WebSearch.APIKey, logger)
	visionClient := upstream.NewVisionClient(
		cfg.Upstream.Vision.BaseURL, cfg.Upstream.Vision.APIKey,
		cfg.Upstream.Vision.MicroModel, cfg.Upstream.Vision.ProModel, logger)

	analyzer := imagery.NewAnalyzer(st, visionClient,
		cfg.Imagery.Workers, cfg.Imagery.BatchTimeout, logger)

	toolRegistry := tools.NewRegistry(logger)
	if err := tools.RegisterMealTools(toolRegistry, tools.Collaborators{
		Store:     st,
		Places:    placesClient,
		Reviews:   reviewsClient,
		WebSearch: webSearchClient,
		Imagery:   analyzer,
		Logger:    logger,
	}); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	aiClient := assistant.NewOpenAIClient(
		cfg.Assistant.BaseURL, cfg.Assistant.APIKey, cfg.Assistant.Model, logger)
	assistantID, err := aiClient.EnsureAssistant(ctx, cfg.Assistant.CacheFile, toolRegistry.Definitions())
	if err != nil {
		return fmt.Errorf("provisioning assistant: %w", err)
	}

	orchestrator := assistant.NewOrchestrator(aiClient, st, toolRegistry, broadcaster, assistantID,
		assistant.Options{
			PollInterval:    cfg.Assistant.PollInterval,
			PollMaxAttempts: cfg.Assistant.PollMaxAttempts,
		}, logger)

	gw := gateway.New(cfg, st, registry, broadcaster, orchestrator, logger)
	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return defaultValue
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("chowline configuration setup")
	fmt.Println("============================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "chowline.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	authToken := prompt(reader, "Client auth token", "")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Assistant Configuration ---")
	aiModel := prompt(reader, "Assistant model", "gpt-4o")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# chowline configuration\n")
	cfg.WriteString("# Generated by chowline init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  token: %q\n", authToken))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("assistant:\n")
	cfg.WriteString("  base_url: \"https://api.openai.com/v1\"\n")
	cfg.WriteString("  api_key: \"${OPENAI_API_KEY}\"\n")
	cfg.WriteString(fmt.Sprintf("  model: %q\n", aiModel))
	cfg.WriteString("\n")

	cfg.WriteString("upstream:\n")
	cfg.WriteString("  places:\n")
	cfg.WriteString("    base_url: \"https://places.googleapis.com/v1\"\n")
	cfg.WriteString("    api_key: \"${PLACES_API_KEY}\"\n")
	cfg.WriteString("  reviews:\n")
	cfg.WriteString("    base_url: \"https://api.yelp.com/v3\"\n")
	cfg.WriteString("    api_key: \"${REVIEWS_API_KEY}\"\n")
	cfg.WriteString("  websearch:\n")
	cfg.WriteString("    base_url: \"https://api.exa.ai\"\n")
	cfg.WriteString("    api_key: \"${WEBSEARCH_API_KEY}\"\n")
	cfg.WriteString("  vision:\n")
	cfg.WriteString("    base_url: \"${VISION_BASE_URL}\"\n")
	cfg.WriteString("    api_key: \"${VISION_API_KEY}\"\n")
	cfg.WriteString("    micro_model: \"amazon.nova-micro-v1:0\"\n")
	cfg.WriteString("    pro_model: \"amazon.nova-pro-v1:0\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
