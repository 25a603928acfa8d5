// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMultiplierKey is the multiplier label applied to every score.
const DefaultMultiplierKey = "default"

// MultiplierTable holds the per-market score multipliers. Only Default feeds pricing;
// the remaining labels are carried through untouched.
type MultiplierTable struct {
	Default float64
	Labels  map[string]float64
}

// NewMultiplierTable returns a table whose default multiplier is 1.0.
func NewMultiplierTable() MultiplierTable {
	return MultiplierTable{Default: 1.0}
}

// Normalized returns t with an unset default replaced by 1.0. A zero default is
// treated as unset since it would cancel every score.
func (t MultiplierTable) Normalized() MultiplierTable {
	if t.Default == 0 {
		t.Default = 1.0
	}
	return t
}

// ParseMultipliers decodes the stored JSON object. Empty input yields the 1.0 default.
func ParseMultipliers(raw []byte) (MultiplierTable, error) {
	t := NewMultiplierTable()
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return NewMultiplierTable(), err
	}
	return t.Normalized(), nil
}

// UnmarshalJSON reads a flat {"label": value} object, lifting "default" out.
func (t *MultiplierTable) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("multipliers: %w", err)
	}
	t.Default = 1.0
	t.Labels = nil
	for k, v := range m {
		if k == DefaultMultiplierKey {
			t.Default = v
			continue
		}
		if t.Labels == nil {
			t.Labels = make(map[string]float64, len(m))
		}
		t.Labels[k] = v
	}
	return nil
}

// MarshalJSON writes the table back in its flat stored form.
func (t MultiplierTable) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, len(t.Labels)+1)
	for k, v := range t.Labels {
		m[k] = v
	}
	m[DefaultMultiplierKey] = t.Default
	return json.Marshal(m)
}

// Market is a competitive grouping whose roster is priced together.
type Market struct {
	ID              int64
	Name            string
	Tier            string
	Multipliers     MultiplierTable
	LastRefreshedAt time.Time
}

// ChampionPool is the ordered list of champions a slot is priced on.
type ChampionPool []string

// Contains reports whether champion is in the pool. Names match exactly.
func (p ChampionPool) Contains(champion string) bool {
	for _, c := range p {
		if c == champion {
			return true
		}
	}
	return false
}

// MarketPlayer is a roster slot: one tracked player inside one market.
type MarketPlayer struct {
	ID       int64
	MarketID int64
	Tag      string // "gameName#tagLine"
	Pool     ChampionPool
}
