// ledger.go implements the append-only usage ledger behind daily budgets.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// Record appends a ledger row and returns its request ID. RequestID and
// CreatedAt are assigned when empty.
func (db *DB) Record(ctx context.Context, e *models.LedgerEntry) (string, error) {
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Currency == "" {
		e.Currency = models.Currency
	}

	_, err := db.NamedExecContext(ctx, `
		INSERT INTO usage_ledger (
			request_id, user_id, session_id, model,
			prompt_tokens, completion_tokens, total_tokens, cached_content_tokens,
			input_cost_usd, output_cost_usd, total_cost_usd, currency,
			source_url, created_at
		) VALUES (
			:request_id, :user_id, :session_id, :model,
			:prompt_tokens, :completion_tokens, :total_tokens, :cached_content_tokens,
			:input_cost_usd, :output_cost_usd, :total_cost_usd, :currency,
			:source_url, :created_at
		)`, e)
	if err != nil {
		return "", fmt.Errorf("failed to record usage: %w", err)
	}
	return e.RequestID, nil
}

// GlobalSpendSince sums the cost of every ledger row created at or after since.
func (db *DB) GlobalSpendSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := db.GetContext(ctx, &total, db.Rebind(`
		SELECT COALESCE(SUM(total_cost_usd), 0) FROM usage_ledger
		WHERE created_at >= ?`), since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to read global spend: %w", err)
	}
	return total, nil
}

// CallerSpendSince sums the caller's ledger rows created at or after since.
// Rows belong to the caller's user, or to its session when it has no user.
func (db *DB) CallerSpendSince(ctx context.Context, caller models.Requester, since time.Time) (float64, error) {
	var total float64
	where, args := ownerClause(caller)
	query := `SELECT COALESCE(SUM(total_cost_usd), 0) FROM usage_ledger WHERE ` + where + ` AND created_at >= ?`
	args = append(args, since.UTC())

	if err := db.GetContext(ctx, &total, db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to read caller spend: %w", err)
	}
	return total, nil
}

// ListLedgerEntries returns the owner's most recent ledger rows, newest first.
func (db *DB) ListLedgerEntries(ctx context.Context, owner models.Requester, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	entries := []models.LedgerEntry{}
	where, args := ownerClause(owner)
	query := `SELECT * FROM usage_ledger WHERE ` + where + ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	if err := db.SelectContext(ctx, &entries, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return entries, nil
}
