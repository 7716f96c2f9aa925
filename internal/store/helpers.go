package store

import (
	"database/sql"
	"fmt"

	"github.com/zigamak/bedcbot/internal/models"
)

// scanCustomerRow scans a Customer from a single sql.Row, mapping a missing
// row to models.ErrCustomerNotFound.
func scanCustomerRow(row *sql.Row) (*models.Customer, error) {
	var c models.Customer
	var email, feeder sql.NullString
	err := row.Scan(&c.AccountNumber, &c.Name, &email, &feeder, &c.BillAmount, &c.NercCap, &c.Metered)
	if err == sql.ErrNoRows {
		return nil, models.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer failed: %w", err)
	}
	c.Email = email.String
	c.Feeder = feeder.String
	return &c, nil
}
