package gatewayinfra

import (
	"bytes"
	"encoding/json"

	"github.com/goliatone/go-offline-sync/model"
)

// mutationEnvelope covers the response shapes mutation endpoints emit. Some
// deployments return the created record nested under a named field, others
// inline the id next to the success flag.
type mutationEnvelope struct {
	Success     *bool            `json:"success"`
	Duplicate   bool             `json:"duplicate"`
	ID          string           `json:"id"`
	Transaction *json.RawMessage `json:"transaction"`
	Entry       *json.RawMessage `json:"entry"`
	Item        *json.RawMessage `json:"item"`
	Data        *json.RawMessage `json:"data"`

	TransactionID string `json:"transaction_id"`
	EntryID       string `json:"entry_id"`
}

// decodeMutation extracts the server-side record from a create response.
// ok is false when the server explicitly signalled failure or no id could be
// recovered from the body.
func decodeMutation(body []byte) (item model.Item, duplicate bool, ok bool) {
	var env mutationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Item{}, false, false
	}
	if env.Success != nil && !*env.Success {
		return model.Item{}, false, false
	}

	for _, raw := range []*json.RawMessage{env.Transaction, env.Entry, env.Item, env.Data} {
		if raw == nil {
			continue
		}
		if nested, ok := model.DecodeItem(*raw); ok {
			return nested, env.Duplicate, true
		}
	}

	id := env.ID
	if id == "" {
		id = env.TransactionID
	}
	if id == "" {
		id = env.EntryID
	}
	if id == "" {
		return model.Item{}, false, false
	}
	return model.Item{ID: id, Provenance: model.ProvenanceServer}, env.Duplicate, true
}

// decodeSuccess reads the success flag from a mutation response. A body
// without the flag counts as success since the status was already checked.
func decodeSuccess(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	var env struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.Success == nil || *env.Success
}

// decodeAnalysis accepts the analysis either at the top level or nested
// inside an envelope.
func decodeAnalysis(body []byte) (model.Analysis, bool) {
	var direct model.Analysis
	if err := json.Unmarshal(body, &direct); err == nil && !direct.IsZero() {
		return direct, true
	}

	var env struct {
		Success  *bool           `json:"success"`
		Analysis *model.Analysis `json:"analysis"`
		Data     *model.Analysis `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Analysis{}, false
	}
	if env.Success != nil && !*env.Success {
		return model.Analysis{}, false
	}
	if env.Analysis != nil {
		return *env.Analysis, true
	}
	if env.Data != nil {
		return *env.Data, true
	}
	return model.Analysis{}, false
}
