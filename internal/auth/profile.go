package auth

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetworks/fleet-api/internal/db"
)

// UpdateProfile changes name and email. A new email must be verified again.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, name, email string) (*User, error) {
	var user User
	err := sqlx.GetContext(ctx, s.db, &user, `
		UPDATE users SET
			name = $1,
			email_verified_at = CASE WHEN email = $2 THEN email_verified_at ELSE NULL END,
			email = $2,
			updated_at = NOW()
		WHERE id = $3
		RETURNING `+userColumns,
		name, email, userID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}
	hashed, err := HashPassword(next)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hashed, userID); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	s.logger.Info("Password changed", zap.Int64("user_id", userID))
	return nil
}

// DeleteAccount removes the user after confirming their password.
func (s *Service) DeleteAccount(ctx context.Context, userID int64, password string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info("Account deleted", zap.Int64("user_id", userID), zap.Int64("company_id", user.CompanyID))
	return nil
}

// VerificationLink builds the link a user follows to verify their email.
func (s *Service) VerificationLink(user *User) string {
	return fmt.Sprintf("%s/api/email/verify/%d/%s", s.appURL, user.ID, VerificationHash(user.Email))
}

// SendVerification issues a verification link. There is no mail transport;
// the link is logged for operators and returned to the caller.
func (s *Service) SendVerification(ctx context.Context, userID int64) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.EmailVerifiedAt != nil {
		return "", ErrAlreadyVerified
	}
	link := s.VerificationLink(user)
	s.logger.Info("Verification link issued",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("link", link),
	)
	return link, nil
}

// VerifyEmail marks the email verified when hash matches.
func (s *Service) VerifyEmail(ctx context.Context, userID int64, hash string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerifiedAt != nil {
		return ErrAlreadyVerified
	}
	if !compareTokenHash(VerificationHash(user.Email), hash) {
		return ErrInvalidVerificationLink
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET email_verified_at = NOW(), updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}
