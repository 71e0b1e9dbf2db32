package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/relayhq/pushcore/internal/push"
)

// PGStore is the durable device store. Schema lives in the goose migrations
// under internal/storage/pg/migrations.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, deviceID string) (*push.DeviceTarget, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, site_id, platform, token, tokens, capabilities, active
		FROM device_targets WHERE device_id = $1`, deviceID)

	var (
		target    push.DeviceTarget
		siteID    sql.NullString
		platform  string
		token     sql.NullString
		tokensRaw []byte
		caps      pq.StringArray
	)
	err := row.Scan(&target.DeviceID, &siteID, &platform, &token, &tokensRaw, &caps, &target.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query device target: %w", err)
	}

	target.SiteID = siteID.String
	target.Platform = push.Platform(platform)
	target.Token = token.String
	for _, c := range caps {
		target.Capabilities = append(target.Capabilities, push.Platform(c))
	}
	if len(tokensRaw) > 0 {
		if err := json.Unmarshal(tokensRaw, &target.Tokens); err != nil {
			return nil, fmt.Errorf("failed to decode device tokens: %w", err)
		}
	}
	return &target, nil
}

func (s *PGStore) Upsert(ctx context.Context, target *push.DeviceTarget) error {
	tokensRaw, err := json.Marshal(target.Tokens)
	if err != nil {
		return fmt.Errorf("failed to encode device tokens: %w", err)
	}

	caps := make(pq.StringArray, 0, len(target.Capabilities))
	for _, c := range target.Capabilities {
		caps = append(caps, string(c))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO device_targets (device_id, site_id, platform, token, tokens, capabilities, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id) DO UPDATE SET
			site_id = EXCLUDED.site_id,
			platform = EXCLUDED.platform,
			token = EXCLUDED.token,
			tokens = EXCLUDED.tokens,
			capabilities = EXCLUDED.capabilities,
			active = EXCLUDED.active,
			updated_at = now()`,
		target.DeviceID, nullStr(target.SiteID), string(target.Platform),
		nullStr(target.Token), tokensRaw, caps, target.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert device target: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateCapabilities(ctx context.Context, deviceID string, capabilities []push.Platform) error {
	caps := make(pq.StringArray, 0, len(capabilities))
	for _, c := range capabilities {
		caps = append(caps, string(c))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE device_targets SET capabilities = $2, updated_at = now()
		WHERE device_id = $1`, deviceID, caps)
	if err != nil {
		return fmt.Errorf("failed to update capabilities: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (s *PGStore) DeactivateToken(ctx context.Context, deviceID string, platform push.Platform) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE device_targets SET
			token = CASE WHEN platform = $2 THEN NULL ELSE token END,
			tokens = tokens - $2,
			capabilities = array_remove(capabilities, $2),
			active = (array_length(array_remove(capabilities, $2), 1) IS NOT NULL),
			updated_at = now()
		WHERE device_id = $1`, deviceID, string(platform))
	if err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}
	return oneRowOrNotFound(res)
}

func oneRowOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
