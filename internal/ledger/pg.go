package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relayhq/pushcore/internal/push"
)

// PGStore is the durable Store over Postgres. Schema lives in the goose
// migrations under internal/storage/pg/migrations.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_records (
			message_id, device_id, site_id, job_id, provider, attempt_index,
			status, error_code, error_message, ttl_seconds, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.MessageID, rec.DeviceID, nullStr(rec.SiteID), nullStr(rec.JobID),
		string(rec.Provider), rec.AttemptIndex, string(rec.Status),
		nullStr(rec.ErrorCode), nullStr(rec.ErrorMessage), rec.TTLSeconds, rec.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, messageID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, device_id, site_id, job_id, provider, attempt_index,
		       status, error_code, error_message, ttl_seconds, sent_at,
		       received_at, latency_ms
		FROM delivery_records WHERE message_id = $1`, messageID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query delivery record: %w", err)
	}
	return rec, nil
}

// MarkDelivered is conditional on status still being 'sent' so it can lose
// benignly to a concurrent sweep.
func (s *PGStore) MarkDelivered(ctx context.Context, messageID string, receivedAt time.Time, latencyMs int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = 'delivered', received_at = $2, latency_ms = $3
		WHERE message_id = $1 AND status = 'sent'`,
		messageID, receivedAt, latencyMs)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivered: %w", err)
	}
	return updatedOne(res)
}

func (s *PGStore) MarkFailed(ctx context.Context, messageID, errorCode, errorMessage string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = 'failed', error_code = $2, error_message = $3
		WHERE message_id = $1 AND status = 'sent'`,
		messageID, errorCode, errorMessage)
	if err != nil {
		return false, fmt.Errorf("failed to mark failed: %w", err)
	}
	return updatedOne(res)
}

// ExpireDue promotes all overdue SENT records in one conditional statement;
// rows that an acknowledgment reaches first simply stop matching.
func (s *PGStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = 'expired'
		WHERE status = 'sent'
		  AND sent_at + make_interval(secs => ttl_seconds) < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire due records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired records: %w", err)
	}
	return n, nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `
		SELECT message_id, device_id, site_id, job_id, provider, attempt_index,
		       status, error_code, error_message, ttl_seconds, sent_at,
		       received_at, latency_ms
		FROM delivery_records WHERE 1=1`
	args := []interface{}{}

	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND sent_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND sent_at <= $%d", len(args))
	}
	if f.Provider != "" {
		args = append(args, string(f.Provider))
		query += fmt.Sprintf(" AND provider = $%d", len(args))
	}
	if f.SiteID != "" {
		args = append(args, f.SiteID)
		query += fmt.Sprintf(" AND site_id = $%d", len(args))
	}
	if f.DeviceID != "" {
		args = append(args, f.DeviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}
	query += " ORDER BY sent_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec        Record
		provider   string
		status     string
		siteID     sql.NullString
		jobID      sql.NullString
		errCode    sql.NullString
		errMessage sql.NullString
		receivedAt sql.NullTime
		latencyMs  sql.NullInt64
	)

	err := row.Scan(&rec.MessageID, &rec.DeviceID, &siteID, &jobID, &provider,
		&rec.AttemptIndex, &status, &errCode, &errMessage, &rec.TTLSeconds,
		&rec.SentAt, &receivedAt, &latencyMs)
	if err != nil {
		return nil, err
	}

	rec.Provider = push.Platform(provider)
	rec.Status = Status(status)
	rec.SiteID = siteID.String
	rec.JobID = jobID.String
	rec.ErrorCode = errCode.String
	rec.ErrorMessage = errMessage.String
	if receivedAt.Valid {
		t := receivedAt.Time
		rec.ReceivedAt = &t
	}
	if latencyMs.Valid {
		v := latencyMs.Int64
		rec.LatencyMs = &v
	}
	return &rec, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func updatedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
