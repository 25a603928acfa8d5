// Package types contains the read shapes returned by the HTTP API and the CLIs
package types

import "time"

// Quote is the current price of one (slot, champion) pair.
type Quote struct {
	MarketID       int64      `json:"market_id"`
	MarketPlayerID int64      `json:"market_player_id"`
	PlayerTag      string     `json:"player_tag"`
	Champion       string     `json:"champion"`
	Price          float64    `json:"price"`
	Score          float64    `json:"score"`
	GameID         string     `json:"game_id,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	IPO            bool       `json:"ipo"`
}

// HistoryPoint is one price record.
type HistoryPoint struct {
	Price     float64   `json:"price"`
	Score     float64   `json:"score"`
	GameID    string    `json:"game_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the price series of a pair within a period, oldest first.
type History struct {
	MarketID       int64          `json:"market_id"`
	MarketPlayerID int64          `json:"market_player_id"`
	Champion       string         `json:"champion"`
	Period         string         `json:"period"`
	Since          time.Time      `json:"since"`
	Points         []HistoryPoint `json:"points"`
}

// TriggerAck acknowledges an update request.
type TriggerAck struct {
	MarketID int64  `json:"market_id"`
	Status   string `json:"status"` // queued or coalesced
}

// CycleSummary condenses one finished update cycle.
type CycleSummary struct {
	MarketID      int64         `json:"market_id"`
	Players       int           `json:"players"`
	Processed     int           `json:"processed"`
	NoNewGame     int           `json:"no_new_game"`
	Failed        int           `json:"failed"`
	MarketMissing bool          `json:"market_missing,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}
