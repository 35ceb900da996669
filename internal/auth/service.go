package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetworks/fleet-api/internal/db"
)

const userColumns = `id, company_id, name, email, password_hash, role, api_token_hash,
	email_verified_at, created_at, updated_at`

// passwordCost is lowered in tests.
var passwordCost = bcrypt.DefaultCost

// Service handles authentication and account operations
type Service struct {
	db     db.Handle
	logger *zap.Logger
	jwt    *JWTManager
	appURL string
}

// NewService creates a new authentication service
func NewService(h db.Handle, logger *zap.Logger, jwt *JWTManager, appURL string) *Service {
	return &Service{
		db:     h,
		logger: logger,
		jwt:    jwt,
		appURL: strings.TrimRight(appURL, "/"),
	}
}

// HashPassword bcrypt-hashes a plaintext password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Register creates a company and its first admin user, then signs them in.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, *TokenPair, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, s.db, &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, req.Email); err != nil {
		return nil, nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, nil, ErrEmailTaken
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}
	apiToken, apiTokenHash, err := GenerateAPIToken()
	if err != nil {
		return nil, nil, err
	}

	companyName := req.CompanyName
	if companyName == "" {
		companyName = req.Name + "'s Company"
	}

	var user User
	err = db.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		var companyID int64
		if err := tx.GetContext(ctx, &companyID,
			`INSERT INTO companies (name, email) VALUES ($1, $2) RETURNING id`,
			companyName, req.Email); err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		return tx.GetContext(ctx, &user, `
			INSERT INTO users (company_id, name, email, password_hash, role, api_token_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+userColumns,
			companyID, req.Name, req.Email, hashed, RoleAdmin, apiTokenHash)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	access, err := s.jwt.GenerateAccessToken(&user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.Info("User registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("company_id", user.CompanyID),
		zap.String("email", user.Email),
	)
	return &user, s.tokenPair(access, apiToken), nil
}

// Login checks credentials and issues a fresh access token and api token.
// Any previously issued api token stops working.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*User, *TokenPair, error) {
	var user User
	err := sqlx.GetContext(ctx, s.db, &user,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("Login failed: unknown email", zap.String("email", req.Email))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Info("Login failed: bad password", zap.Int64("user_id", user.ID))
		return nil, nil, ErrInvalidCredentials
	}

	access, err := s.jwt.GenerateAccessToken(&user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	apiToken, apiTokenHash, err := GenerateAPIToken()
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET api_token_hash = $1, updated_at = NOW() WHERE id = $2`,
		apiTokenHash, user.ID); err != nil {
		return nil, nil, fmt.Errorf("failed to store api token: %w", err)
	}
	user.APITokenHash = &apiTokenHash

	s.logger.Info("User logged in",
		zap.Int64("user_id", user.ID),
		zap.Int64("company_id", user.CompanyID),
	)
	return &user, s.tokenPair(access, apiToken), nil
}

func (s *Service) tokenPair(access, apiToken string) *TokenPair {
	return &TokenPair{
		AccessToken: access,
		APIToken:    apiToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.jwt.Expiry().Seconds()),
	}
}

// Logout revokes the user's api token. Access tokens expire on their own.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET api_token_hash = NULL, updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to revoke api token: %w", err)
	}
	s.logger.Info("User logged out", zap.Int64("user_id", userID))
	return nil
}

// ValidateAccessToken verifies a JWT access token.
func (s *Service) ValidateAccessToken(token string) (*UserContext, error) {
	return s.jwt.ValidateAccessToken(token)
}

// ValidateAPIToken looks up the user owning a raw api token.
func (s *Service) ValidateAPIToken(ctx context.Context, raw string) (*UserContext, error) {
	if len(raw) != 60 {
		return nil, ErrInvalidToken
	}
	hash := hashToken(raw)

	var user User
	err := sqlx.GetContext(ctx, s.db, &user,
		`SELECT `+userColumns+` FROM users WHERE api_token_hash = $1`, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up api token: %w", err)
	}
	if user.APITokenHash == nil || !compareTokenHash(*user.APITokenHash, hash) {
		return nil, ErrInvalidToken
	}

	return &UserContext{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: TokenTypeAPIToken,
	}, nil
}

// Authenticate accepts either a JWT access token or a raw api token. A JWT
// only proves identity: role and company come from the current user row, and
// a deleted user's tokens stop working.
func (s *Service) Authenticate(ctx context.Context, token string) (*UserContext, error) {
	if strings.Count(token, ".") == 2 {
		if claims, err := s.jwt.ValidateAccessToken(token); err == nil {
			user, err := s.GetUser(ctx, claims.UserID)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					return nil, ErrInvalidToken
				}
				return nil, err
			}
			return &UserContext{
				UserID:    user.ID,
				CompanyID: user.CompanyID,
				Name:      user.Name,
				Email:     user.Email,
				Role:      user.Role,
				TokenType: TokenTypeJWT,
			}, nil
		}
	}
	return s.ValidateAPIToken(ctx, token)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := sqlx.GetContext(ctx, s.db, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
