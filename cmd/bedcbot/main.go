package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/zigamak/bedcbot/internal/api"
	"github.com/zigamak/bedcbot/internal/genai"
	"github.com/zigamak/bedcbot/internal/lockfile"
	"github.com/zigamak/bedcbot/internal/session"
	"github.com/zigamak/bedcbot/internal/twiliowhatsapp"
	"github.com/zigamak/bedcbot/internal/util"
	"github.com/zigamak/bedcbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bedcbot state data
	DefaultStateDir = "/var/lib/bedcbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "bedcbot.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAPIAddr is the default HTTP listen address
	DefaultAPIAddr = ":8080"
	// DefaultCleanupSchedule runs the session sweep every ten minutes
	DefaultCleanupSchedule = "*/10 * * * *"
)

func main() {
	initializeLogger()
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "dir", *flags.stateDir)
		os.Exit(1)
	}

	// One instance per state directory.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire instance lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := buildRunConfig(flags)
	slog.Info("Bootstrapping bedcbot", "channel", cfg.Channel, "api_addr", cfg.Addr, "dsn_set", cfg.DBDSN != "")
	if err := api.Run(ctx, cfg); err != nil {
		slog.Error("bedcbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("bedcbot exited successfully")
}

// Config holds environment configuration.
type Config struct {
	StateDir        string
	DatabaseURL     string
	WhatsAppDSN     string
	Channel         string
	OpenAIKey       string
	OpenAIModel     string
	APIAddr         string
	CleanupSchedule string
}

// Flags holds command line flag values.
type Flags struct {
	stateDir        *string
	dbDSN           *string
	whatsappDSN     *string
	channel         *string
	openaiKey       *string
	openaiModel     *string
	apiAddr         *string
	cleanupSchedule *string
	qrOutput        *string
	numeric         *bool
	disableAI       *bool
}

// initializeLogger sets up structured logging, level from LOG_LEVEL.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:        os.Getenv("BEDCBOT_STATE_DIR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		Channel:         os.Getenv("MESSAGING_CHANNEL"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		APIAddr:         os.Getenv("API_ADDR"),
		CleanupSchedule: os.Getenv("CLEANUP_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.Channel == "" {
		config.Channel = api.ChannelWhatsApp
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = DefaultCleanupSchedule
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	return config
}

// parseCommandLineFlags defines flags with environment-derived defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "Directory for state data (lock file, SQLite databases)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "Database DSN (SQLite path or Postgres URL); empty uses in-memory store"),
		whatsappDSN:     flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow database DSN"),
		channel:         flag.String("channel", config.Channel, "Messaging channel: whatsapp or twilio"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key"),
		openaiModel:     flag.String("openai-model", config.OpenAIModel, "OpenAI completion model override"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "HTTP listen address"),
		cleanupSchedule: flag.String("cleanup-schedule", config.CleanupSchedule, "Cron expression for session cleanup"),
		qrOutput:        flag.String("qr-output", "", "Path to write WhatsApp login QR code"),
		numeric:         flag.Bool("numeric-code", util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false), "Use numeric WhatsApp login code instead of QR"),
		disableAI:       flag.Bool("disable-ai", util.ParseBoolEnv("DISABLE_AI", false), "Disable the AI client and use keyword fallback"),
	}
	flag.Parse()
	return flags
}

// buildRunConfig assembles the api.Run configuration from parsed flags.
func buildRunConfig(flags Flags) api.Config {
	cfg := api.Config{
		Addr:            *flags.apiAddr,
		Channel:         *flags.channel,
		DBDSN:           *flags.dbDSN,
		DisableAI:       *flags.disableAI,
		CleanupSchedule: *flags.cleanupSchedule,
		SessionConfig: session.Config{
			Timeout:      util.ParseDurationEnv("SESSION_TIMEOUT", session.DefaultTimeout),
			PaidTimeout:  util.ParseDurationEnv("PAID_SESSION_TIMEOUT", session.DefaultPaidTimeout),
			HistoryLimit: util.ParseIntEnv("HISTORY_LIMIT", session.DefaultHistoryLimit),
		},
	}

	if *flags.openaiKey != "" {
		cfg.GenAIOpts = append(cfg.GenAIOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		cfg.GenAIOpts = append(cfg.GenAIOpts, genai.WithModel(*flags.openaiModel))
	}

	if *flags.whatsappDSN != "" {
		cfg.WhatsAppOpts = append(cfg.WhatsAppOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	if *flags.qrOutput != "" {
		cfg.WhatsAppOpts = append(cfg.WhatsAppOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		cfg.WhatsAppOpts = append(cfg.WhatsAppOpts, whatsapp.WithNumericCode())
	}

	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		cfg.TwilioOpts = append(cfg.TwilioOpts, twiliowhatsapp.WithAccountSID(sid))
	}
	if token := os.Getenv("TWILIO_AUTH_TOKEN"); token != "" {
		cfg.TwilioOpts = append(cfg.TwilioOpts, twiliowhatsapp.WithAuthToken(token))
	}
	if from := os.Getenv("TWILIO_FROM_NUMBER"); from != "" {
		cfg.TwilioOpts = append(cfg.TwilioOpts, twiliowhatsapp.WithFromWhats(from))
	}

	return cfg
}
