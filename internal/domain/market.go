package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Outcome identifies one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "Yes"
	OutcomeNo  Outcome = "No"
)

// Opposite returns the other side of a binary market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Market represents a Polymarket prediction market as seen by the analytics
// engine. The engine treats markets as read-only; the external catalog owns
// their identity and resolution state.
type Market struct {
	ID          string
	Question    string
	Slug        string
	Category    string
	Outcomes    [2]string // e.g. ["Yes","No"]
	TokenIDs    [2]string // CLOB token IDs (76-digit strings)
	ConditionID string
	Volume      float64
	Liquidity   float64
	Status      MarketStatus
	EndDate     *time.Time // expected or actual resolution time
	Winner      Outcome    // winning side, empty while unresolved
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resolved reports whether the market has a known winning outcome.
func (m Market) Resolved() bool {
	return m.Winner != ""
}

// WinnerTokenID returns the CLOB token ID of the winning outcome, or the
// primary token when the winner is unknown.
func (m Market) WinnerTokenID() string {
	if m.Winner == OutcomeNo {
		return m.TokenIDs[1]
	}
	return m.TokenIDs[0]
}
