package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zigamak/bedcbot/internal/bot"
	"github.com/zigamak/bedcbot/internal/flow"
	"github.com/zigamak/bedcbot/internal/genai"
	"github.com/zigamak/bedcbot/internal/messaging"
	"github.com/zigamak/bedcbot/internal/scheduler"
	"github.com/zigamak/bedcbot/internal/session"
	"github.com/zigamak/bedcbot/internal/store"
	"github.com/zigamak/bedcbot/internal/twiliowhatsapp"
	"github.com/zigamak/bedcbot/internal/whatsapp"
)

// Channel names for the messaging transport.
const (
	ChannelTwilio   = "twilio"
	ChannelWhatsApp = "whatsapp"
)

// Config carries everything Run needs to assemble the service.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string
	// Channel selects the messaging transport: "twilio" or "whatsapp".
	Channel string
	// DBDSN selects the repository backend. Empty means the in-memory
	// store; otherwise the DSN type decides between SQLite and Postgres.
	DBDSN string
	// DisableAI forces keyword-fallback mode even when an API key exists.
	DisableAI bool
	// CleanupSchedule is a cron expression for the periodic session sweep.
	// Empty disables the job.
	CleanupSchedule string

	SessionConfig session.Config
	GenAIOpts     []genai.Option
	WhatsAppOpts  []whatsapp.Option
	TwilioOpts    []twiliowhatsapp.Option
}

// Run assembles the full service: store, AI client, session manager, flow
// engine, router, transport, cleanup scheduler and HTTP server. It blocks
// until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	st, err := buildStore(cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var ai genai.ClientInterface
	if cfg.DisableAI {
		slog.Info("Run: AI disabled, using keyword fallback")
	} else if client, aiErr := genai.NewClient(cfg.GenAIOpts...); aiErr != nil {
		slog.Warn("Run: GenAI client unavailable, using keyword fallback", "error", aiErr)
	} else {
		ai = client
	}

	sessions := session.NewManager(cfg.SessionConfig)
	engine := flow.NewEngine(st, ai, sessions.HistoryLimit())
	router := bot.NewRouter(sessions, engine, st)

	svc, twilio, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging transport: %w", err)
	}

	loop := bot.NewLoop(svc, router)
	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot loop: %w", err)
	}
	defer func() {
		if stopErr := loop.Stop(); stopErr != nil {
			slog.Warn("Run: bot loop stop failed", "error", stopErr)
		}
	}()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if cfg.CleanupSchedule != "" {
		err := sched.AddJob(cfg.CleanupSchedule, func() {
			if removed := sessions.CleanupExpired(); removed > 0 {
				slog.Info("Run: scheduled cleanup removed sessions", "removed", removed)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", cfg.CleanupSchedule, err)
		}
		slog.Info("Run: session cleanup scheduled", "schedule", cfg.CleanupSchedule)
	}

	server := NewServer(sessions, st, twilio, ai != nil)
	return server.Serve(ctx, cfg.Addr)
}

// buildStore selects the repository backend from the DSN.
func buildStore(dsn string) (store.Store, error) {
	switch {
	case dsn == "":
		slog.Info("Run: no database DSN, using in-memory store")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(dsn) == "postgres":
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	default:
		return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
}

// buildTransport constructs the selected messaging service. The Twilio
// service is also returned separately so the webhook can be mounted.
func buildTransport(cfg Config) (messaging.Service, *messaging.TwilioService, error) {
	switch cfg.Channel {
	case ChannelTwilio:
		client, err := twiliowhatsapp.NewClient(cfg.TwilioOpts...)
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	case ChannelWhatsApp, "":
		client, err := whatsapp.NewClient(cfg.WhatsAppOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging channel %q", cfg.Channel)
	}
}
