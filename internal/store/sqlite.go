// Package store provides storage backends for bedcbot.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/zigamak/bedcbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the SQLite-backed repository.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "dsn", dsn, "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied", "dsn", dsn)
	return &SQLiteStore{db: db}, nil
}

// FindCustomer looks up a customer by account number.
func (s *SQLiteStore) FindCustomer(ctx context.Context, accountNumber string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT account_number, name, email, feeder, bill_amount, nerc_cap, metered FROM customers WHERE account_number = ?`,
		accountNumber)
	return scanCustomerRow(row)
}

// CheckBilling compares the customer's bill against the NERC cap.
func (s *SQLiteStore) CheckBilling(ctx context.Context, accountNumber string) (*models.BillingCheck, error) {
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
func (s *SQLiteStore) SaveFaultReport(ctx context.Context, report *models.FaultReport) (int64, error) {
	createdAt := report.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fault_reports (phone_number, account_number, email, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		report.PhoneNumber, report.AccountNumber, report.Email, report.Description, createdAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveFaultReport: insert failed", "error", err)
		return 0, fmt.Errorf("failed to save fault report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read fault report id: %w", err)
	}
	slog.Debug("SQLiteStore.SaveFaultReport: report saved", "id", id, "phone", report.PhoneNumber)
	return id, nil
}

// SaveConversation persists one conversation turn.
func (s *SQLiteStore) SaveConversation(ctx context.Context, rec *models.ConversationRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (phone_number, session_id, user_message, reply, intent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.PhoneNumber, rec.SessionID, rec.UserMessage, rec.Reply, string(rec.Intent), ts)
	if err != nil {
		slog.Error("SQLiteStore.SaveConversation: insert failed", "error", err)
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// FaultReportCount returns the total number of saved fault reports.
func (s *SQLiteStore) FaultReportCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fault_reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fault reports: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
