package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transaction is a bank transaction row used as persona signal input
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Description string
	Amount      float64
	Category    string
	OccurredAt  time.Time
}

// InsertTransaction records a bank transaction for the user
func (s *Store) InsertTransaction(ctx context.Context, userID uuid.UUID, description string, amount float64, category string, occurredAt time.Time) (*Transaction, error) {
	txn := &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Description: description,
		Amount:      amount,
		Category:    category,
		OccurredAt:  occurredAt.UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, description, amount, category, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		txn.ID.String(), txn.UserID.String(), txn.Description, txn.Amount, txn.Category, txn.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	return txn, nil
}

// RecentTransactionDescriptions returns the newest limit transaction
// descriptions for the user. The persona engine mines these for brand names.
func (s *Store) RecentTransactionDescriptions(ctx context.Context, userID uuid.UUID, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT description FROM transactions
		 WHERE user_id = ? ORDER BY occurred_at DESC LIMIT ?`,
		userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	descriptions := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		descriptions = append(descriptions, d)
	}

	return descriptions, rows.Err()
}
