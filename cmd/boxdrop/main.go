// ABOUTME: Entry point for the boxdrop server
// ABOUTME: Serves the box API, runs the retention sweeper, and hosts the setup commands

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
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

	"github.com/boxdrop/boxdrop/internal/auth"
	"github.com/boxdrop/boxdrop/internal/blob"
	"github.com/boxdrop/boxdrop/internal/cleanup"
	"github.com/boxdrop/boxdrop/internal/config"
	"github.com/boxdrop/boxdrop/internal/gateway"
	"github.com/boxdrop/boxdrop/internal/seed"
	"github.com/boxdrop/boxdrop/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                    _
| |__   _____  ____ _| |_ __ ___  _ __
| '_ \ / _ \ \/ / _' | | '__/ _ \| '_ \
| |_) | (_) >  < (_| | | | | (_) | |_) |
|_.__/ \___/_/\_\__,_|_|_|  \___/| .__/
                                 |_|
`

// getConfigPath returns the path to the boxdrop config file.
// Priority: BOXDROP_CONFIG env var > XDG_CONFIG_HOME/boxdrop/boxdrop.yaml > ~/.config/boxdrop/boxdrop.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BOXDROP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "boxdrop.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "boxdrop", "boxdrop.yaml")
}

// getDataPath returns the path to the boxdrop data directory.
// Priority: XDG_DATA_HOME/boxdrop > ~/.local/share/boxdrop
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "boxdrop")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: boxdrop <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the boxdrop server")
		fmt.Println("  init       Create a config file with a fresh signing secret")
		fmt.Println("  cleanup    Run one retention sweep and exit")
		fmt.Println("  health     Check server health")
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
	case "cleanup":
		err = runCleanup(ctx)
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

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s\n", cfg.Storage.Endpoint)
	green.Print("    ▶ ")
	fmt.Printf("Retention: %s\n", cfg.Retention.Window)
	fmt.Println()

	logger.Info("starting boxdrop",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	blobs, err := blob.NewS3Store(ctx, blob.S3Config{
		Endpoint:    cfg.Storage.Endpoint,
		Region:      cfg.Storage.Region,
		AccessKey:   cfg.Storage.AccessKey,
		SecretKey:   cfg.Storage.SecretKey,
		ImageBucket: cfg.Storage.ImageBucket,
		FileBucket:  cfg.Storage.FileBucket,
		SignTTL:     cfg.Storage.SignTTL,
	})
	if err != nil {
		return fmt.Errorf("creating blob store: %w", err)
	}

	tokens := auth.NewTokens([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL)

	if cfg.SeedTutorialEnabled() {
		// The server still serves without the demo box
		if _, _, err := seed.TutorialBox(ctx, s, logger); err != nil {
			logger.Warn("seeding tutorial box", "error", err)
		}
	}

	sweeper := cleanup.NewSweeper(s, blobs, cfg.Retention.Window, cfg.Retention.SweepInterval, logger)
	go sweeper.Run(ctx)

	gw := gateway.New(cfg, s, blobs, tokens, logger)
	return gw.Run(ctx)
}

// runCleanup runs a single retention sweep against the configured store
// and storage, then exits. Useful from cron when the server is not the
// one doing retention.
func runCleanup(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	blobs, err := blob.NewS3Store(ctx, blob.S3Config{
		Endpoint:    cfg.Storage.Endpoint,
		Region:      cfg.Storage.Region,
		AccessKey:   cfg.Storage.AccessKey,
		SecretKey:   cfg.Storage.SecretKey,
		ImageBucket: cfg.Storage.ImageBucket,
		FileBucket:  cfg.Storage.FileBucket,
		SignTTL:     cfg.Storage.SignTTL,
	})
	if err != nil {
		return fmt.Errorf("creating blob store: %w", err)
	}

	sweeper := cleanup.NewSweeper(s, blobs, cfg.Retention.Window, cfg.Retention.SweepInterval, logger)
	result, err := sweeper.SweepOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweeping: %w", err)
	}

	fmt.Printf("Deleted %d box(es) and %d blob(s)\n", result.BoxesDeleted, result.BlobsDeleted)
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d box(es) failed to delete", len(result.Errors))
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
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

// runInit writes a starter config with a freshly generated signing
// secret. Refuses to overwrite an existing file.
func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "boxdrop.db")

	green := color.New(color.FgGreen)

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating token secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# boxdrop configuration
# Generated by boxdrop init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  token_secret: "%s"
  token_ttl: "1h"

storage:
  endpoint: "${BOXDROP_S3_ENDPOINT}"
  region: "us-east-1"
  access_key: "${BOXDROP_S3_ACCESS_KEY}"
  secret_key: "${BOXDROP_S3_SECRET_KEY}"
  image_bucket: "image-content"
  file_bucket: "file-content"
  sign_ttl: "1h"

retention:
  window: "24h"
  sweep_interval: "1h"

logging:
  level: "info"
  format: "text"
`, dbPath, secret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green.Printf("  ✓ Created config: %s\n", configPath)
	green.Printf("  ✓ Data directory: %s\n", dataPath)
	fmt.Println()
	fmt.Println("Set the storage credentials in your environment, then:")
	fmt.Println("  boxdrop serve")

	return nil
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

	// Handler-level attrs first (from WithAttrs), then record attrs
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
