package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/planora/hub/internal/model"
)

type AuthService struct {
	db          *sql.DB
	tokenExpiry time.Duration
}

func NewAuthService(db *sql.DB, tokenExpiryHours int) *AuthService {
	return &AuthService{
		db:          db,
		tokenExpiry: time.Duration(tokenExpiryHours) * time.Hour,
	}
}

func (s *AuthService) IsBootstrapComplete(ctx context.Context) (bool, error) {
	var done int
	err := s.db.QueryRowContext(ctx,
		`SELECT setup_completed FROM system_state WHERE singleton_id = 1`).Scan(&done)
	if err != nil {
		return false, err
	}
	return done == 1, nil
}

// BootstrapAdmin creates the first user with a personal team and marks
// setup complete. Idempotence is enforced by the setup flag.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password, displayName string) error {
	done, err := s.IsBootstrapComplete(ctx)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("bootstrap already completed")
	}
	if email == "" || password == "" {
		return &model.ValidationError{Field: "email/password", Reason: "both are required"}
	}
	if displayName == "" {
		displayName = "Admin"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO teams(uuid, name, personal_team, created_at, updated_at)
		VALUES(?, ?, 1, ?, ?)`,
		uuid.NewString(), displayName+"'s Team", now, now)
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	teamID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO users(uuid, email, password_hash, display_name, current_team_id, status, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, 'active', ?, ?)`,
		uuid.NewString(), email, string(hash), displayName, teamID, now, now)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO team_members(team_id, user_id, role, created_at)
		VALUES(?, ?, 'owner', ?)`, teamID, userID, now); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE system_state SET setup_completed = 1 WHERE singleton_id = 1`); err != nil {
		return err
	}
	return tx.Commit()
}

// Login verifies credentials and issues an opaque bearer token.
// Only the SHA-256 of the token is stored.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	var userID int64
	var passwordHash, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash, status FROM users WHERE email = ?`, email).
		Scan(&userID, &passwordHash, &status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("invalid credentials")
	}
	if err != nil {
		return "", err
	}
	if status != "active" {
		return "", fmt.Errorf("account disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_tokens(token_id, user_id, token_hash, expires_at, created_at)
		VALUES(?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, hashToken(token),
		now.Add(s.tokenExpiry).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Logout revokes a token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE token_hash = ?`, hashToken(token))
	return err
}

// ValidateToken resolves a bearer token to the acting principal,
// loading the current team and all team memberships.
func (s *AuthService) ValidateToken(token string) (*model.AuthUser, error) {
	ctx := context.Background()

	var userID int64
	var expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM api_tokens WHERE token_hash = ?`,
		hashToken(token)).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown token")
	}
	if err != nil {
		return nil, err
	}
	if exp, err := time.Parse(time.RFC3339Nano, expiresAt); err != nil || time.Now().UTC().After(exp) {
		return nil, fmt.Errorf("token expired")
	}

	var email, displayName string
	var currentTeam sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT email, display_name, current_team_id FROM users WHERE id = ? AND status = 'active'`,
		userID).Scan(&email, &displayName, &currentTeam)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user inactive")
	}
	if err != nil {
		return nil, err
	}

	user := model.NewAuthUser(userID, email, displayName)
	if currentTeam.Valid {
		user.CurrentTeamID = currentTeam.Int64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id FROM team_members WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var teamID int64
		if err := rows.Scan(&teamID); err != nil {
			return nil, err
		}
		user.JoinTeam(teamID)
	}
	return user, rows.Err()
}

// SwitchTeam changes the user's active team; membership is required.
func (s *AuthService) SwitchTeam(ctx context.Context, userID, teamID int64) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM team_members WHERE user_id = ? AND team_id = ?`,
		userID, teamID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return &model.NotFoundError{Resource: "team membership", ID: fmt.Sprintf("%d", teamID)}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET current_team_id = ? WHERE id = ?`, teamID, userID)
	return err
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
