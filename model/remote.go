package model

import (
	"encoding/json"
	"time"
)

// RemoteKind tags the shape a remote response decoded into.
type RemoteKind int

const (
	// RemoteEmpty means the response carried no usable records: an envelope
	// with success=false, a missing payload field, or a body the decoder did
	// not recognize. It is a normal outcome, never an error.
	RemoteEmpty RemoteKind = iota
	// RemoteList means the response was a bare JSON array of records.
	RemoteList
	// RemoteEnvelope means the response was an object with a success flag and
	// a named record array.
	RemoteEnvelope
)

// RemoteResult is the uniform shape every remote response is decoded into at
// the gateway boundary. Repositories never see raw response bodies, so the
// backing service is free to return either a bare list or an envelope object
// without the orchestration layer caring.
type RemoteResult struct {
	Kind  RemoteKind
	Items []Item
}

// envelopeFields lists the array field names the backing service uses across
// endpoints. Absence of all of them decodes to an empty result.
var envelopeFields = []string{"transactions", "entries", "items", "data"}

type wireItem struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"user_id"`
	Amount      json.Number     `json:"amount"`
	Calories    json.Number     `json:"calories"`
	Quantity    json.Number     `json:"quantity"`
	Category    string          `json:"category"`
	FoodItem    string          `json:"food_item"`
	Description string          `json:"description"`
	Timestamp   string          `json:"timestamp"`
	Date        string          `json:"date"`
	Provenance  string          `json:"provenance"`
	Raw         json.RawMessage `json:"-"`
}

// DecodeItems decodes a remote response body into a RemoteResult. It accepts
// a bare array, an envelope object with a boolean success flag and a named
// array, or anything else (which decodes to RemoteEmpty). It never returns an
// error: a malformed body is an empty result by contract.
func DecodeItems(body []byte) RemoteResult {
	var wires []wireItem
	if err := json.Unmarshal(body, &wires); err == nil {
		return RemoteResult{Kind: RemoteList, Items: wireToItems(wires)}
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return RemoteResult{Kind: RemoteEmpty}
	}

	if raw, ok := env["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err != nil || !success {
			return RemoteResult{Kind: RemoteEmpty}
		}
	}

	for _, field := range envelopeFields {
		raw, ok := env[field]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &wires); err != nil {
			return RemoteResult{Kind: RemoteEmpty}
		}
		return RemoteResult{Kind: RemoteEnvelope, Items: wireToItems(wires)}
	}

	return RemoteResult{Kind: RemoteEmpty}
}

// DecodeItem decodes a single record object, or the first element of an
// array, from a remote body. ok is false when nothing identifiable was found.
func DecodeItem(body []byte) (Item, bool) {
	var w wireItem
	if err := json.Unmarshal(body, &w); err == nil && w.ID != "" {
		return w.toItem(), true
	}
	res := DecodeItems(body)
	if len(res.Items) > 0 {
		return res.Items[0], true
	}
	return Item{}, false
}

func wireToItems(wires []wireItem) []Item {
	items := make([]Item, 0, len(wires))
	for _, w := range wires {
		items = append(items, w.toItem())
	}
	return items
}

func (w wireItem) toItem() Item {
	item := Item{
		ID:          w.ID,
		OwnerID:     w.OwnerID,
		Category:    w.Category,
		Description: w.Description,
		Provenance:  ProvenanceServer,
	}

	// Calorie endpoints name fields differently from budget ones.
	if item.Category == "" {
		item.Category = w.FoodItem
	}
	item.Amount = numberOr(w.Amount, 0)
	if item.Amount == 0 {
		item.Amount = numberOr(w.Calories, 0)
	}
	item.Quantity = numberOr(w.Quantity, 0)

	if w.Provenance == string(ProvenanceOffline) {
		item.Provenance = ProvenanceOffline
	}

	ts := w.Timestamp
	if ts == "" {
		ts = w.Date
	}
	item.OccurredAt = parseWireTime(ts)

	return item
}

func numberOr(n json.Number, fallback float64) float64 {
	if n == "" {
		return fallback
	}
	f, err := n.Float64()
	if err != nil {
		return fallback
	}
	return f
}

// wireTimeFormats covers the timestamp renderings observed across endpoints.
var wireTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range wireTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
