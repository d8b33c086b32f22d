package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stellar-fee-tracker/insights-service/internal/idgen"
)

// PostgresStore implements Repository against a *sql.DB. Migrations are
// authored separately with goose; PostgresStore only issues DML.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-connected *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InsertSamples writes a batch inside a single transaction; an empty batch
// is a no-op success.
func (p *PostgresStore) InsertSamples(ctx context.Context, samples []feesample.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fee_data_points (fee_amount, timestamp, transaction_id, sequence)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("repository: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.FeeAmount, s.Timestamp, s.TransactionID, s.Sequence); err != nil {
			return fmt.Errorf("repository: insert sample: %w", err)
		}
	}

	return tx.Commit()
}

// SamplesSince returns samples with timestamp >= t, ascending.
func (p *PostgresStore) SamplesSince(ctx context.Context, t time.Time) ([]feesample.Sample, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT fee_amount, timestamp, transaction_id, sequence
		FROM fee_data_points WHERE timestamp >= $1
		ORDER BY timestamp ASC
	`, t)
	if err != nil {
		return nil, fmt.Errorf("repository: query samples: %w", err)
	}
	defer rows.Close()

	var out []feesample.Sample
	for rows.Next() {
		var s feesample.Sample
		if err := rows.Scan(&s.FeeAmount, &s.Timestamp, &s.TransactionID, &s.Sequence); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneBefore deletes samples older than t and returns the row count
// removed.
func (p *PostgresStore) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM fee_data_points WHERE timestamp < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("repository: prune: %w", err)
	}
	return res.RowsAffected()
}

// InsertSnapshot appends a periodic fee-stats capture.
func (p *PostgresStore) InsertSnapshot(ctx context.Context, snap FeeSnapshot) error {
	capturedAt := snap.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO fee_snapshots (base_fee, min_fee, max_fee, avg_fee, captured_at)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.BaseFee, snap.MinFee, snap.MaxFee, snap.AvgFee, capturedAt)
	if err != nil {
		return fmt.Errorf("repository: insert snapshot: %w", err)
	}
	return nil
}

// CreateAlertConfig inserts a new enabled alert config and returns its id.
func (p *PostgresStore) CreateAlertConfig(ctx context.Context, webhookURL string, threshold ConfigThreshold) (string, error) {
	id := idgen.WithPrefix("alertcfg_")
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO alert_configs (id, webhook_url, threshold, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW(), NOW())
	`, id, webhookURL, threshold.String())
	if err != nil {
		return "", fmt.Errorf("repository: create alert config: %w", err)
	}
	return id, nil
}

// ListAlertConfigs returns every config, enabled and disabled alike.
func (p *PostgresStore) ListAlertConfigs(ctx context.Context) ([]AlertConfig, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, webhook_url, threshold, enabled, created_at, updated_at
		FROM alert_configs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: list alert configs: %w", err)
	}
	defer rows.Close()

	var out []AlertConfig
	for rows.Next() {
		var cfg AlertConfig
		var thresholdStr string
		if err := rows.Scan(&cfg.ID, &cfg.WebhookURL, &thresholdStr, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			continue
		}
		threshold, ok := ParseConfigThreshold(thresholdStr)
		if !ok {
			continue
		}
		cfg.Threshold = threshold
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// UpdateAlertConfig applies the given non-nil fields and reports whether a
// row existed.
func (p *PostgresStore) UpdateAlertConfig(ctx context.Context, id string, threshold *ConfigThreshold, enabled *bool) (bool, error) {
	var thresholdArg interface{}
	if threshold != nil {
		thresholdArg = threshold.String()
	}
	var enabledArg interface{}
	if enabled != nil {
		enabledArg = *enabled
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE alert_configs SET
			threshold = COALESCE($1, threshold),
			enabled = COALESCE($2, enabled),
			updated_at = NOW()
		WHERE id = $3
	`, thresholdArg, enabledArg, id)
	if err != nil {
		return false, fmt.Errorf("repository: update alert config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SoftDeleteAlertConfig disables (never removes) a config row.
func (p *PostgresStore) SoftDeleteAlertConfig(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE alert_configs SET enabled = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return false, fmt.Errorf("repository: soft delete alert config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LogAlertEvent writes exactly one row per dispatch attempt.
func (p *PostgresStore) LogAlertEvent(ctx context.Context, event AlertEvent) error {
	triggeredAt := event.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = time.Now().UTC()
	}
	var configID interface{}
	if event.ConfigID != "" {
		configID = event.ConfigID
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO alert_events (config_id, severity, peak_fee, baseline_fee, spike_ratio, webhook_url, delivered, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, configID, event.Severity, event.PeakFee, event.BaselineFee, event.SpikeRatio, event.WebhookURL, event.Delivered, triggeredAt)
	if err != nil {
		return fmt.Errorf("repository: log alert event: %w", err)
	}
	return nil
}

// QueryAlertEvents returns events ordered by triggered_at descending, limit
// clamped to [1, 100].
func (p *PostgresStore) QueryAlertEvents(ctx context.Context, limit int, filter AlertEventFilter) ([]AlertEvent, error) {
	limit = ClampHistoryLimit(limit)

	query := `
		SELECT id, COALESCE(config_id, ''), severity, peak_fee, baseline_fee, spike_ratio, webhook_url, delivered, triggered_at
		FROM alert_events WHERE 1=1
	`
	var args []interface{}
	n := 1
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", n)
		args = append(args, filter.Severity)
		n++
	}
	if filter.Delivered != nil {
		query += fmt.Sprintf(" AND delivered = $%d", n)
		args = append(args, *filter.Delivered)
		n++
	}
	query += fmt.Sprintf(" ORDER BY triggered_at DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: query alert events: %w", err)
	}
	defer rows.Close()

	var out []AlertEvent
	for rows.Next() {
		var e AlertEvent
		if err := rows.Scan(&e.ID, &e.ConfigID, &e.Severity, &e.PeakFee, &e.BaselineFee, &e.SpikeRatio, &e.WebhookURL, &e.Delivered, &e.TriggeredAt); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountAlertEvents returns the total matching rows for the same filter
// QueryAlertEvents accepts.
func (p *PostgresStore) CountAlertEvents(ctx context.Context, filter AlertEventFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM alert_events WHERE 1=1`
	var args []interface{}
	n := 1
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", n)
		args = append(args, filter.Severity)
		n++
	}
	if filter.Delivered != nil {
		query += fmt.Sprintf(" AND delivered = $%d", n)
		args = append(args, *filter.Delivered)
		n++
	}

	var count int64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: count alert events: %w", err)
	}
	return count, nil
}
