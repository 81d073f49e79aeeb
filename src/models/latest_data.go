package models

// -----------------------------------------------------------------------------
// Live push payload
// -----------------------------------------------------------------------------

type MLatestData struct {
	Type      string           `json:"type"` // "INITIAL", "UPDATE" or "JOB"
	Index     *MMarketIndex    `json:"index,omitempty"`
	Recent    []MIndexSnapshot `json:"recent,omitempty"` // INITIAL only
	Prices    []MPriceQuote    `json:"prices,omitempty"`
	Jobs      []MJobStatus     `json:"jobs,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}
