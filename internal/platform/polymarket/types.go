package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from JSON number or numeric string. Gamma sends volume
// and liquidity both ways depending on the endpoint.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// stringList decodes Gamma's doubly-encoded arrays: fields like "outcomes"
// and "clobTokenIds" arrive as a JSON string containing a JSON array, e.g.
// "[\"Yes\",\"No\"]". A plain array is accepted too.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	var inner []string
	if err := json.Unmarshal([]byte(s), &inner); err != nil {
		return err
	}
	*l = inner
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	Slug          string     `json:"slug"`
	Category      string     `json:"category"`
	ConditionID   string     `json:"conditionId"`
	Active        flexBool   `json:"active"` // API may send bool or "true"/"false" string
	Closed        flexBool   `json:"closed"`
	Outcomes      stringList `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices stringList `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.97\",\"0.03\"]"
	ClobTokenIDs  stringList `json:"clobTokenIds"`  // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Volume        flexFloat  `json:"volumeNum"`
	VolumeStr     flexFloat  `json:"volume"`
	Liquidity     flexFloat  `json:"liquidityNum"`
	LiquidityStr  flexFloat  `json:"liquidity"`
	EndDate       string     `json:"endDate"`
	CreatedAt     string     `json:"createdAt"`
	UpdatedAt     string     `json:"updatedAt"`
}

// winnerCutoffHigh / winnerCutoffLow bound the final outcome price of a
// resolved market. Gamma does not expose the winner directly on the market
// object, but a settled Yes token trades at 1.0 and a settled No at 0.0, so
// a final Yes price above the high cutoff means Yes won and below the low
// cutoff means No won. Anything in between is treated as unresolved.
const (
	winnerCutoffHigh = 0.95
	winnerCutoffLow  = 0.05
)

// ToDomainMarket converts a Gamma APIMarket to a domain.Market. The winner is
// inferred from the final outcome prices when the market is closed.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:          m.ID,
		Question:    m.Question,
		Slug:        m.Slug,
		Category:    m.Category,
		ConditionID: m.ConditionID,
		Outcomes:    [2]string{"Yes", "No"},
		Volume:      float64(m.Volume),
		Liquidity:   float64(m.Liquidity),
	}
	if dm.Question == "" {
		dm.Question = "Unknown"
	}
	if dm.Volume == 0 {
		dm.Volume = float64(m.VolumeStr)
	}
	if dm.Liquidity == 0 {
		dm.Liquidity = float64(m.LiquidityStr)
	}

	for i, o := range m.Outcomes {
		if i >= 2 {
			break
		}
		if o != "" {
			dm.Outcomes[i] = o
		}
	}
	for i, id := range m.ClobTokenIDs {
		if i >= 2 {
			break
		}
		dm.TokenIDs[i] = id
	}

	if bool(m.Closed) {
		dm.Status = domain.MarketStatusClosed
		if w, ok := m.inferWinner(); ok {
			dm.Status = domain.MarketStatusResolved
			dm.Winner = w
		}
	} else if bool(m.Active) {
		dm.Status = domain.MarketStatusActive
	} else {
		dm.Status = domain.MarketStatusClosed
	}

	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			dm.EndDate = &t
		}
	}

	return dm
}

// YesPrice returns the market's current yes-side price, when present. The
// first outcome price is the Yes side.
func (m *APIMarket) YesPrice() (float64, bool) {
	if len(m.OutcomePrices) == 0 {
		return 0, false
	}
	p, err := strconv.ParseFloat(m.OutcomePrices[0], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// inferWinner derives the winning side from the final outcome prices of a
// closed market.
func (m *APIMarket) inferWinner() (domain.Outcome, bool) {
	yes, ok := m.YesPrice()
	if !ok {
		return "", false
	}
	switch {
	case yes > winnerCutoffHigh:
		return domain.OutcomeYes, true
	case yes < winnerCutoffLow:
		return domain.OutcomeNo, true
	default:
		return "", false
	}
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// PricePoint is a single entry in the CLOB prices-history response.
type PricePoint struct {
	Timestamp int64   `json:"t"` // unix seconds
	Price     float64 `json:"p"` // Yes-side probability in [0,1]
}

// Time returns the point's timestamp as a time.Time in UTC.
func (p PricePoint) Time() time.Time {
	return time.Unix(p.Timestamp, 0).UTC()
}

// priceHistoryResponse is the envelope of the /prices-history endpoint.
type priceHistoryResponse struct {
	History []PricePoint `json:"history"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe from market channels.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// WSPriceUpdate is a last-trade or price-change frame from the market
// channel, reduced to the fields the live feed consumes.
type WSPriceUpdate struct {
	EventType string `json:"event_type"` // "last_trade_price", "price_change"
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// ToSample converts a WSPriceUpdate into a domain.Sample for the given
// market ID. ok is false when the price cannot be parsed.
func (u *WSPriceUpdate) ToSample(marketID string) (domain.Sample, bool) {
	p, err := strconv.ParseFloat(u.Price, 64)
	if err != nil {
		return domain.Sample{}, false
	}
	s := domain.Sample{
		MarketID:    marketID,
		Probability: p,
		Source:      domain.SampleSourceLiveQuery,
	}
	if ts, err := strconv.ParseInt(u.Timestamp, 10, 64); err == nil {
		// The feed sends millisecond timestamps.
		s.Timestamp = time.UnixMilli(ts).UTC()
	} else {
		s.Timestamp = time.Now().UTC()
	}
	return s, true
}
