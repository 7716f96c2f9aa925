// Package store provides storage backends for bedcbot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/zigamak/bedcbot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the PostgreSQL-backed repository.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// FindCustomer looks up a customer by account number.
func (s *PostgresStore) FindCustomer(ctx context.Context, accountNumber string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT account_number, name, email, feeder, bill_amount, nerc_cap, metered FROM customers WHERE account_number = $1`,
		accountNumber)
	return scanCustomerRow(row)
}

// CheckBilling compares the customer's bill against the NERC cap.
func (s *PostgresStore) CheckBilling(ctx context.Context, accountNumber string) (*models.BillingCheck, error) {
	c, err := s.FindCustomer(ctx, accountNumber)
	if err == models.ErrCustomerNotFound {
		return &models.BillingCheck{Status: models.BillingNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return checkBilling(c), nil
}

// SaveFaultReport persists a fault report and returns its assigned ID.
func (s *PostgresStore) SaveFaultReport(ctx context.Context, report *models.FaultReport) (int64, error) {
	createdAt := report.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO fault_reports (phone_number, account_number, email, description, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		report.PhoneNumber, report.AccountNumber, report.Email, report.Description, createdAt).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore.SaveFaultReport: insert failed", "error", err)
		return 0, fmt.Errorf("failed to save fault report: %w", err)
	}
	slog.Debug("PostgresStore.SaveFaultReport: report saved", "id", id, "phone", report.PhoneNumber)
	return id, nil
}

// SaveConversation persists one conversation turn.
func (s *PostgresStore) SaveConversation(ctx context.Context, rec *models.ConversationRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (phone_number, session_id, user_message, reply, intent, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.PhoneNumber, rec.SessionID, rec.UserMessage, rec.Reply, string(rec.Intent), ts)
	if err != nil {
		slog.Error("PostgresStore.SaveConversation: insert failed", "error", err)
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// FaultReportCount returns the total number of saved fault reports.
func (s *PostgresStore) FaultReportCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fault_reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fault reports: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
