package database

import (
	"context"
	"encoding/json"
	"fmt"

	"crypto-trading-bot/internal/order"
)

// Repository provides data access for bot configs and fills.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// BOT CONFIGS
// ============================================================================

// SaveBotConfig inserts a bot config or bumps the version of an
// existing one keyed by bot_id.
func (r *Repository) SaveBotConfig(ctx context.Context, cfg *BotConfig) error {
	params, err := json.Marshal(cfg.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	query := `
		INSERT INTO bot_configs (bot_id, name, class, description, symbol, interval, mode, initial_balance, parameters, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bot_id) DO UPDATE
		SET name = EXCLUDED.name, class = EXCLUDED.class, description = EXCLUDED.description,
		    symbol = EXCLUDED.symbol, interval = EXCLUDED.interval, mode = EXCLUDED.mode,
		    initial_balance = EXCLUDED.initial_balance, parameters = EXCLUDED.parameters,
		    notes = EXCLUDED.notes, version = bot_configs.version + 1, updated_at = NOW()
		RETURNING id, version, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		cfg.BotID, cfg.Name, cfg.Class, cfg.Description, cfg.Symbol, cfg.Interval,
		cfg.Mode, cfg.InitialBalance, params, cfg.Status, cfg.Notes,
	).Scan(&cfg.ID, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt)
}

// GetBotConfig retrieves one config by bot id.
func (r *Repository) GetBotConfig(ctx context.Context, botID string) (*BotConfig, error) {
	query := `
		SELECT id, bot_id, name, class, description, symbol, interval, mode,
		       initial_balance, parameters, status, notes, version, created_at, updated_at
		FROM bot_configs
		WHERE bot_id = $1
	`
	return r.scanBotConfig(r.db.Pool.QueryRow(ctx, query, botID))
}

// ListBotConfigs retrieves all configs ordered by creation time.
func (r *Repository) ListBotConfigs(ctx context.Context) ([]*BotConfig, error) {
	query := `
		SELECT id, bot_id, name, class, description, symbol, interval, mode,
		       initial_balance, parameters, status, notes, version, created_at, updated_at
		FROM bot_configs
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BotConfig
	for rows.Next() {
		cfg, err := r.scanBotConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// UpdateBotConfigStatus records a lifecycle transition.
func (r *Repository) UpdateBotConfigStatus(ctx context.Context, botID, status string) error {
	query := `UPDATE bot_configs SET status = $2, updated_at = NOW() WHERE bot_id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, botID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bot config %q not found", botID)
	}
	return nil
}

// DeleteBotConfig removes a config record.
func (r *Repository) DeleteBotConfig(ctx context.Context, botID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM bot_configs WHERE bot_id = $1`, botID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanBotConfig(row rowScanner) (*BotConfig, error) {
	cfg := &BotConfig{}
	var params []byte
	err := row.Scan(
		&cfg.ID, &cfg.BotID, &cfg.Name, &cfg.Class, &cfg.Description,
		&cfg.Symbol, &cfg.Interval, &cfg.Mode, &cfg.InitialBalance,
		&params, &cfg.Status, &cfg.Notes,
		&cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	return cfg, nil
}

// ============================================================================
// FILLS
// ============================================================================

// SaveFill persists one executed fill. Duplicate fill ids are ignored
// so replays do not double-write.
func (r *Repository) SaveFill(ctx context.Context, botID string, f order.Fill) error {
	query := `
		INSERT INTO fills (fill_id, order_id, bot_id, symbol, side, quantity, price, fee, fee_asset, is_maker, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (fill_id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		f.ID, f.OrderID, botID, f.Symbol, string(f.Side),
		f.Quantity, f.Price, f.Fee, f.FeeAsset, f.IsMaker, f.Timestamp,
	)
	return err
}

// GetFillsByBot retrieves a bot's fills in execution order.
func (r *Repository) GetFillsByBot(ctx context.Context, botID string) ([]*FillRecord, error) {
	query := `
		SELECT id, fill_id, order_id, bot_id, symbol, side, quantity, price, fee, fee_asset, is_maker, executed_at, created_at
		FROM fills
		WHERE bot_id = $1
		ORDER BY executed_at, id
	`
	rows, err := r.db.Pool.Query(ctx, query, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FillRecord
	for rows.Next() {
		rec := &FillRecord{}
		err := rows.Scan(
			&rec.ID, &rec.FillID, &rec.OrderID, &rec.BotID, &rec.Symbol, &rec.Side,
			&rec.Quantity, &rec.Price, &rec.Fee, &rec.FeeAsset, &rec.IsMaker,
			&rec.ExecutedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
