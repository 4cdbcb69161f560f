package model

import "time"

// SyncOp is the mutation a queued entry replays against the remote gateway.
type SyncOp string

const (
	OpAdd    SyncOp = "add"
	OpUpdate SyncOp = "update"
	OpDelete SyncOp = "delete"
)

// SyncEntry is a pending mutation in the durable sync queue. Entries are
// appended when a write cannot reach the remote service and drained strictly
// in QueueID order when connectivity returns. A failed replay keeps its entry
// queued (Succeeded false, AttemptedAt stamped) for the next drain.
type SyncEntry struct {
	QueueID     int64
	TargetID    string
	Entity      EntityType
	Op          SyncOp
	Payload     Item
	EnqueuedAt  time.Time
	AttemptedAt *time.Time
	Succeeded   bool
}
