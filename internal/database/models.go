package database

import "time"

// BotConfig is a persisted bot configuration record. Parameters holds
// the strategy parameter map serialized as JSONB.
type BotConfig struct {
	ID             int64              `json:"id"`
	BotID          string             `json:"bot_id"`
	Name           string             `json:"name"`
	Class          string             `json:"class"`
	Description    string             `json:"description,omitempty"`
	Symbol         string             `json:"symbol"`
	Interval       string             `json:"interval"`
	Mode           string             `json:"mode,omitempty"`
	InitialBalance float64            `json:"initial_balance,omitempty"`
	Parameters     map[string]float64 `json:"parameters"`
	Status         string             `json:"status"`
	Notes          string             `json:"notes,omitempty"`
	Version        int                `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// FillRecord is a persisted execution fill.
type FillRecord struct {
	ID         int64     `json:"id"`
	FillID     string    `json:"fill_id"`
	OrderID    string    `json:"order_id"`
	BotID      string    `json:"bot_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	FeeAsset   string    `json:"fee_asset,omitempty"`
	IsMaker    bool      `json:"is_maker"`
	ExecutedAt int64     `json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}
