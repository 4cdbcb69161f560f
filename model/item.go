package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the kind of record an Item represents. It tags cache
// keys, sync queue entries, and remote gateway paths so one repository pair
// can be instantiated per entity.
type EntityType string

const (
	EntityTransaction EntityType = "transaction"
	EntityCalorie     EntityType = "calorie"
)

// Provenance records where an Item's identifier came from. Items created
// while offline carry a locally generated id until the sync reconciler
// replaces it with the server-assigned one.
type Provenance string

const (
	ProvenanceServer  Provenance = "server"
	ProvenanceOffline Provenance = "offline"
)

// LocalIDPrefix marks identifiers that were generated on-device and have not
// yet been reconciled with a server-assigned id.
const LocalIDPrefix = "local_"

// Item is the generic record the sync engine orchestrates. A transaction uses
// Amount/Category, a calorie entry uses Amount (calories) and Quantity; both
// share the same lifecycle so the repositories are written once.
type Item struct {
	ID          string     `json:"id,omitempty"`
	OwnerID     string     `json:"user_id,omitempty"`
	Amount      float64    `json:"amount"`
	Quantity    float64    `json:"quantity,omitempty"`
	Category    string     `json:"category,omitempty"`
	Description string     `json:"description,omitempty"`
	OccurredAt  time.Time  `json:"timestamp,omitempty"`
	Provenance  Provenance `json:"provenance,omitempty"`
}

// NewLocalID generates a temporary identifier for an Item created on-device.
// The prefix marks provenance so callers can tell an unsynced record apart
// from a server one at a glance.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", LocalIDPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// IsLocalID reports whether id was generated on-device.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// IsLocal reports whether the Item still carries a temporary on-device id.
func (i Item) IsLocal() bool {
	return IsLocalID(i.ID)
}
