package store

import (
	"context"
	"fmt"
)

const companyColumns = `id, name, email, phone, address, city, state, zip, country,
	registration_number, tax_id, website, created_at, updated_at`

func (s *Store) GetCompany(ctx context.Context, companyID int64) (*Company, error) {
	var c Company
	if err := s.get(ctx, s.db, &c,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1 AND deleted_at IS NULL`, companyID); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCompany replaces the company's settings.
func (s *Store) UpdateCompany(ctx context.Context, companyID int64, c *Company) (*Company, error) {
	var out Company
	err := s.get(ctx, s.db, &out, `
		UPDATE companies SET name = $1, email = $2, phone = $3, address = $4, city = $5, state = $6,
			zip = $7, country = $8, registration_number = $9, tax_id = $10, website = $11,
			updated_at = NOW()
		WHERE id = $12 AND deleted_at IS NULL
		RETURNING `+companyColumns,
		c.Name, c.Email, c.Phone, c.Address, c.City, c.State, c.Zip, c.Country,
		c.RegistrationNumber, c.TaxID, c.Website, companyID)
	if err != nil {
		return nil, fmt.Errorf("update company %d: %w", companyID, err)
	}
	return &out, nil
}
