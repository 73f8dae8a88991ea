// jobs.go persists async analysis jobs.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// CreateAnalysisJob inserts a pending job, filling in ID and timestamps.
func (db *DB) CreateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error {
	now := time.Now().UTC()
	job.ID = uuid.NewString()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobPending
	}

	_, err := db.NamedExecContext(ctx, `
		INSERT INTO analysis_jobs (id, user_id, session_id, status, request, response, error_message, created_at, updated_at)
		VALUES (:id, :user_id, :session_id, :status, :request, :response, :error_message, :created_at, :updated_at)`,
		job)
	if err != nil {
		return fmt.Errorf("failed to create analysis job: %w", err)
	}
	return nil
}

// GetAnalysisJob retrieves a job by ID.
func (db *DB) GetAnalysisJob(ctx context.Context, id string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	err := db.GetContext(ctx, &job, db.Rebind(`SELECT * FROM analysis_jobs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis job: %w", err)
	}
	return &job, nil
}

// UpdateAnalysisJob saves a job's status, response and error message.
func (db *DB) UpdateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error {
	job.UpdatedAt = time.Now().UTC()
	result, err := db.NamedExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = :status, response = :response, error_message = :error_message, updated_at = :updated_at
		WHERE id = :id`, job)
	if err != nil {
		return fmt.Errorf("failed to update analysis job: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("analysis job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

// ListAnalysisJobs returns the owner's recent jobs, newest first.
func (db *DB) ListAnalysisJobs(ctx context.Context, owner models.Requester, limit int) ([]models.AnalysisJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	jobs := []models.AnalysisJob{}
	where, args := ownerClause(owner)
	query := `SELECT * FROM analysis_jobs WHERE ` + where + ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	if err := db.SelectContext(ctx, &jobs, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list analysis jobs: %w", err)
	}
	return jobs, nil
}

// ownerClause matches rows owned by a requester: by user when there is one,
// otherwise by session among rows with no user.
func ownerClause(owner models.Requester) (string, []any) {
	if owner.UserID != nil {
		return `user_id = ?`, []any{*owner.UserID}
	}
	session := ""
	if owner.SessionID != nil {
		session = *owner.SessionID
	}
	return `user_id IS NULL AND session_id = ?`, []any{session}
}
