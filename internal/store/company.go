package store

import (
	"context"
	"fmt"

	"github.com/eventdesk/accounts/internal/db"
	"github.com/eventdesk/accounts/types"
)

// CompanyStore handles persistence for companies.
type CompanyStore struct {
	db db.DBTX
}

func NewCompanyRepository(q db.DBTX) *CompanyStore {
	return &CompanyStore{db: q}
}

// GetOrCreate resolves a company by name, inserting it on first use. The
// no-op update makes RETURNING yield the existing row on conflict, so
// concurrent callers with the same name converge on one id.
func (r *CompanyStore) GetOrCreate(ctx context.Context, name, address string) (types.Company, error) {
	const query = `
		INSERT INTO companies (name, address)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, address, created_at`
	var company types.Company
	if err := r.db.QueryRowContext(ctx, query, name, address).Scan(
		&company.ID,
		&company.Name,
		&company.Address,
		&company.CreatedAt,
	); err != nil {
		return types.Company{}, fmt.Errorf("get or create company: %w", err)
	}
	return company, nil
}
