package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is an account row
type User struct {
	ID               uuid.UUID
	Email            string
	HashedPassword   string
	FullName         string
	MonthlyIncome    float64
	EmploymentStatus string
	FinancialGoal    string
	RiskTolerance    string
	PhoneNumber      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProfileUpdate carries the mutable profile fields; nil means leave unchanged
type ProfileUpdate struct {
	FullName         *string
	MonthlyIncome    *float64
	EmploymentStatus *string
	FinancialGoal    *string
	RiskTolerance    *string
	PhoneNumber      *string
}

const userColumns = `id, email, hashed_password, full_name, monthly_income,
	employment_status, financial_goal, risk_tolerance, phone_number, created_at, updated_at`

// CreateUser inserts a new account
func (s *Store) CreateUser(ctx context.Context, email, hashedPassword, fullName string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: hashedPassword,
		FullName:       fullName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, hashed_password, full_name, monthly_income,
			employment_status, financial_goal, risk_tolerance, phone_number, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, '', '', '', '', ?, ?)`,
		user.ID.String(), user.Email, user.HashedPassword, user.FullName, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByID fetches an account by id
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return getUserByID(ctx, s.db, id)
}

// GetUserByEmail fetches an account by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// UpdateUserProfile applies the non-nil fields of update to a user row
func (s *Store) UpdateUserProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.FullName != nil {
		user.FullName = *update.FullName
	}
	if update.MonthlyIncome != nil {
		user.MonthlyIncome = *update.MonthlyIncome
	}
	if update.EmploymentStatus != nil {
		user.EmploymentStatus = *update.EmploymentStatus
	}
	if update.FinancialGoal != nil {
		user.FinancialGoal = *update.FinancialGoal
	}
	if update.RiskTolerance != nil {
		user.RiskTolerance = *update.RiskTolerance
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = *update.PhoneNumber
	}
	user.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET full_name = ?, monthly_income = ?, employment_status = ?,
			financial_goal = ?, risk_tolerance = ?, phone_number = ?, updated_at = ?
		 WHERE id = ?`,
		user.FullName, user.MonthlyIncome, user.EmploymentStatus,
		user.FinancialGoal, user.RiskTolerance, user.PhoneNumber, user.UpdatedAt,
		id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}

	return user, nil
}

func getUserByID(ctx context.Context, q querier, id uuid.UUID) (*User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var id string
	err := row.Scan(&id, &u.Email, &u.HashedPassword, &u.FullName, &u.MonthlyIncome,
		&u.EmploymentStatus, &u.FinancialGoal, &u.RiskTolerance, &u.PhoneNumber,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}

	return &u, nil
}
