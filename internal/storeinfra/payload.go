package storeinfra

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-offline-sync/model"
)

func marshalPayload(item model.Item) ([]byte, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding sync payload: %w", err)
	}
	return data, nil
}

func (r syncRow) toEntry() (model.SyncEntry, error) {
	var payload model.Item
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return model.SyncEntry{}, fmt.Errorf("decoding sync payload for entry %d: %w", r.QueueID, err)
		}
	}
	return model.SyncEntry{
		QueueID:     r.QueueID,
		TargetID:    r.TargetID,
		Entity:      model.EntityType(r.Entity),
		Op:          model.SyncOp(r.Op),
		Payload:     payload,
		EnqueuedAt:  r.EnqueuedAt,
		AttemptedAt: r.AttemptedAt,
		Succeeded:   r.Succeeded,
	}, nil
}
