// Package store provides storage backends for bedcbot.
//
// It defines the repository interface consumed by the conversation flow and
// ships three implementations: an in-memory store for tests and development,
// an SQLite-backed store, and a PostgreSQL-backed store.
package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/zigamak/bedcbot/internal/models"
)

// Store is the repository contract the conversation flow depends on. Customer
// data is read-only; fault reports and conversation turns are append-only.
type Store interface {
	// FindCustomer looks up a customer by account number. Returns
	// models.ErrCustomerNotFound when no record exists.
	FindCustomer(ctx context.Context, accountNumber string) (*models.Customer, error)
	// CheckBilling compares the customer's bill against the NERC cap.
	// An unknown account yields a check with status BillingNotFound, not an error.
	CheckBilling(ctx context.Context, accountNumber string) (*models.BillingCheck, error)
	// SaveFaultReport persists a confirmed fault report and returns its ID.
	SaveFaultReport(ctx context.Context, report *models.FaultReport) (int64, error)
	// SaveConversation persists one conversation turn for analytics.
	SaveConversation(ctx context.Context, rec *models.ConversationRecord) error
	// FaultReportCount returns the total number of saved fault reports.
	FaultReportCount(ctx context.Context) (int, error)
	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN sets the DSN for SQLite-backed stores.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the DSN for Postgres-backed stores.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType inspects a DSN and reports "postgres" or "sqlite3".
// Anything that does not look like a Postgres connection string is treated as
// an SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// checkBilling derives a billing check from a customer record. Shared by all
// store implementations so the cap comparison lives in one place.
func checkBilling(c *models.Customer) *models.BillingCheck {
	check := &models.BillingCheck{
		BillAmount: c.BillAmount,
		Cap:        c.NercCap,
		Customer:   c,
	}
	if c.BillAmount > c.NercCap {
		check.Status = models.BillingAboveCap
		check.Difference = c.BillAmount - c.NercCap
	} else {
		check.Status = models.BillingWithinCap
	}
	return check
}

// InMemoryStore is a concurrency-safe in-memory repository used in tests and
// development runs without a database.
type InMemoryStore struct {
	mu            sync.Mutex
	customers     map[string]models.Customer
	faultReports  []models.FaultReport
	conversations []models.ConversationRecord
	nextReportID  int64
}

// NewInMemoryStore creates an in-memory store pre-seeded with demo customers.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{
		customers:    make(map[string]models.Customer),
		nextReportID: 1,
	}
	for _, c := range seedCustomers {
		s.customers[c.AccountNumber] = c
	}
	slog.Debug("InMemoryStore initialized", "customers", len(s.customers))
	return s
}

// seedCustomers are the demo records available without a real database.
var seedCustomers = []models.Customer{
	{AccountNumber: "101234", Name: "Adaeze Okafor", Email: "adaeze.okafor@example.com", Feeder: "Ugbowo 11KV", BillAmount: 18500, NercCap: 22000, Metered: false},
	{AccountNumber: "105678", Name: "Musa Ibrahim", Email: "musa.ibrahim@example.com", Feeder: "Ikpoba Hill 11KV", BillAmount: 30400, NercCap: 22000, Metered: false},
	{AccountNumber: "109012", Name: "Grace Edet", Email: "grace.edet@example.com", Feeder: "Sapele Road 33KV", BillAmount: 12750, NercCap: 25000, Metered: true},
}

// AddCustomer inserts or replaces a customer record. Test helper.
func (s *InMemoryStore) AddCustomer(c models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.AccountNumber] = c
}

// FindCustomer looks up a customer by account number.
func (s *InMemoryStore) FindCustomer(ctx context.Context, accountNumber string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[accountNumber]
	if !ok {
		return nil, models.ErrCustomerNotFound
	}
	cc := c
	return &cc, nil
}

// CheckBilling compares the customer's bill against the NERC cap.
func (s *InMemoryStore) CheckBilling(ctx context.Context, accountNumber string) (*models.BillingCheck, error) {
	c, err := s.FindCustomer(ctx, accountNumber)
	if err == models.ErrCustomerNotFound {
		return &models.BillingCheck{Status: models.BillingNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return checkBilling(c), nil
}

// SaveFaultReport appends a fault report and returns its assigned ID.
func (s *InMemoryStore) SaveFaultReport(ctx context.Context, report *models.FaultReport) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *report
	r.ID = s.nextReportID
	s.nextReportID++
	s.faultReports = append(s.faultReports, r)
	slog.Debug("InMemoryStore.SaveFaultReport: report saved", "id", r.ID, "phone", r.PhoneNumber)
	return r.ID, nil
}

// SaveConversation appends one conversation turn.
func (s *InMemoryStore) SaveConversation(ctx context.Context, rec *models.ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, *rec)
	return nil
}

// FaultReportCount returns the number of saved fault reports.
func (s *InMemoryStore) FaultReportCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.faultReports), nil
}

// Conversations returns a copy of the saved conversation turns. Test helper.
func (s *InMemoryStore) Conversations() []models.ConversationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationRecord, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
