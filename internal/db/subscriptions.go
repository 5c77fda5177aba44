package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studiobron/internal/model"
)

// SubscriptionFor returns the client's prepaid balance for a scenario,
// or a NotFoundError when none exists.
func (s *Store) SubscriptionFor(ctx context.Context, clientID, scenarioID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.q.QueryRowContext(ctx, `
		SELECT id, client_id, scenario_id, balance, created_at, updated_at
		FROM subscriptions
		WHERE client_id = ? AND scenario_id = ?`,
		clientID, scenarioID,
	).Scan(&sub.ID, &sub.ClientID, &sub.ScenarioID, &sub.Balance, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("subscription", clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// UpsertSubscription creates or replaces the balance row.
func (s *Store) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO subscriptions (client_id, scenario_id, balance, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(client_id, scenario_id) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at`,
		sub.ClientID, sub.ScenarioID, sub.Balance,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return s.q.QueryRowContext(ctx,
		"SELECT id FROM subscriptions WHERE client_id = ? AND scenario_id = ?",
		sub.ClientID, sub.ScenarioID,
	).Scan(&sub.ID)
}

// AdjustSubscriptionBalance adds delta units, refusing changes that
// would make the balance negative.
func (s *Store) AdjustSubscriptionBalance(ctx context.Context, subscriptionID int64, delta int) error {
	var balance int
	err := s.q.QueryRowContext(ctx,
		"SELECT balance FROM subscriptions WHERE id = ?", subscriptionID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewNotFound("subscription", subscriptionID)
	}
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if balance+delta < 0 {
		return model.Invariant("subscription %d balance %d cannot take delta %d", subscriptionID, balance, delta)
	}
	_, err = s.q.ExecContext(ctx,
		"UPDATE subscriptions SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		delta, subscriptionID,
	)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return nil
}
