package model

import "time"

// IPO values reported for a (slot, champion) pair that has never been priced.
const (
	IPOPrice = 10.0
	IPOScore = 5.0
)

// StockValueRecord is one append-only price point.
type StockValueRecord struct {
	ID             string
	MarketID       int64
	MarketPlayerID int64
	PlayerTag      string
	Champion       string
	Price          float64
	Score          float64
	GameID         string // empty for IPO records
	Timestamp      time.Time
}

// ProcessedGame marks a game as already folded into a slot's prices.
type ProcessedGame struct {
	MarketPlayerID int64
	GameID         string
	PlayerTag      string
	Champion       string
	ProcessedAt    time.Time
}

// Quote is the current price of a pair.
type Quote struct {
	Price     float64
	Score     float64
	GameID    string
	Timestamp time.Time
	IPO       bool // true when no record exists and the IPO default is reported
}

// IPOQuote returns the default quote for an unpriced pair.
func IPOQuote() Quote {
	return Quote{Price: IPOPrice, Score: IPOScore, IPO: true}
}

// QuoteOf converts the latest record into a quote.
func QuoteOf(r StockValueRecord) Quote {
	return Quote{Price: r.Price, Score: r.Score, GameID: r.GameID, Timestamp: r.Timestamp}
}
