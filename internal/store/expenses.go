package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const expenseColumns = `id, company_id, vehicle_id, category, amount, expense_date, description,
	notes, created_at, updated_at, deleted_at`

func (s *Store) ListExpenses(ctx context.Context, companyID int64) ([]Expense, error) {
	expenses := []Expense{}
	if err := sqlx.SelectContext(ctx, s.db, &expenses,
		`SELECT `+expenseColumns+` FROM expenses
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY expense_date DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if err := s.attachExpenseVehicles(ctx, expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) attachExpenseVehicles(ctx context.Context, expenses []Expense) error {
	ids := make([]*int64, 0, len(expenses))
	for _, e := range expenses {
		ids = append(ids, e.VehicleID)
	}
	vehicles, err := s.vehiclesByID(ctx, derefIDs(ids))
	if err != nil {
		return err
	}
	for i := range expenses {
		if expenses[i].VehicleID != nil {
			expenses[i].Vehicle = vehicles[*expenses[i].VehicleID]
		}
	}
	return nil
}

func (s *Store) findExpense(ctx context.Context, companyID, id int64) (*Expense, error) {
	var e Expense
	if err := s.get(ctx, s.db, &e,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(e.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetExpense(ctx context.Context, companyID, id int64, withRelations bool) (*Expense, error) {
	e, err := s.findExpense(ctx, companyID, id)
	if err != nil || !withRelations {
		return e, err
	}
	one := []Expense{*e}
	if err := s.attachExpenseVehicles(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *Store) CreateExpense(ctx context.Context, e *Expense) error {
	err := s.get(ctx, s.db, e, `
		INSERT INTO expenses (company_id, vehicle_id, category, amount, expense_date, description, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+expenseColumns,
		e.CompanyID, e.VehicleID, e.Category, e.Amount, e.ExpenseDate, e.Description, e.Notes)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

func (s *Store) UpdateExpense(ctx context.Context, companyID, id int64, e *Expense) (*Expense, error) {
	if _, err := s.findExpense(ctx, companyID, id); err != nil {
		return nil, err
	}
	var out Expense
	err := s.get(ctx, s.db, &out, `
		UPDATE expenses SET vehicle_id = $1, category = $2, amount = $3, expense_date = $4,
			description = $5, notes = $6, updated_at = NOW()
		WHERE id = $7 AND company_id = $8 AND deleted_at IS NULL
		RETURNING `+expenseColumns,
		e.VehicleID, e.Category, e.Amount, e.ExpenseDate, e.Description, e.Notes, id, companyID)
	if err != nil {
		return nil, fmt.Errorf("update expense %d: %w", id, err)
	}
	return &out, nil
}

func (s *Store) DeleteExpense(ctx context.Context, companyID, id int64) error {
	if _, err := s.findExpense(ctx, companyID, id); err != nil {
		return err
	}
	return s.softDelete(ctx, s.db, tableExpenses, companyID, id)
}
