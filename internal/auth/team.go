package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/db"
)

// ListTeam returns the company's users, oldest first.
func (s *Service) ListTeam(ctx context.Context, companyID int64) ([]User, error) {
	users := []User{}
	if err := sqlx.SelectContext(ctx, s.db, &users,
		`SELECT `+userColumns+` FROM users WHERE company_id = $1 ORDER BY created_at, id`, companyID); err != nil {
		return nil, fmt.Errorf("failed to list team: %w", err)
	}
	return users, nil
}

// AddTeamMember creates an admin account for email with a temporary password.
// The display name defaults to the local part of the address.
func (s *Service) AddTeamMember(ctx context.Context, companyID int64, email string) (*User, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, s.db, &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email); err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, ErrMemberExists
	}

	hashed, err := HashPassword(TemporaryPassword)
	if err != nil {
		return nil, err
	}
	_, apiTokenHash, err := GenerateAPIToken()
	if err != nil {
		return nil, err
	}

	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}

	var user User
	err = sqlx.GetContext(ctx, s.db, &user, `
		INSERT INTO users (company_id, name, email, password_hash, role, api_token_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		companyID, name, email, hashed, RoleAdmin, apiTokenHash)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrMemberExists
		}
		return nil, fmt.Errorf("failed to add team member: %w", err)
	}

	s.logger.Info("Team member added",
		zap.Int64("company_id", companyID),
		zap.Int64("user_id", user.ID),
		zap.String("email", email),
	)
	return &user, nil
}

// RemoveTeamMember deletes a user of the actor's company other than the actor.
func (s *Service) RemoveTeamMember(ctx context.Context, actor *UserContext, userID int64) error {
	var companyID int64
	err := sqlx.GetContext(ctx, s.db, &companyID, `SELECT company_id FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load team member: %w", err)
	}
	if companyID != actor.CompanyID {
		return ErrNotInCompany
	}
	if userID == actor.UserID {
		return ErrRemoveSelf
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1 AND company_id = $2`, userID, companyID); err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	s.logger.Info("Team member removed",
		zap.Int64("company_id", companyID),
		zap.Int64("user_id", userID),
		zap.Int64("removed_by", actor.UserID),
	)
	return nil
}
