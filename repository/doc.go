// Package repository is the orchestration core of the offline-sync engine.
//
// # Overview
//
// Three types cooperate over shared collaborators (expiring cache, in-flight
// group, durable local store, remote gateway, connectivity oracle):
//
//   - QueryRepository: the read path. Cache check, then single-flight
//     coordination, then a source decision between the remote gateway and the
//     local store. Remote failures degrade silently to local data and the
//     result is cached either way.
//   - CommandRepository: the write path. Local-first persistence is the
//     durability point; the remote call runs when online and queues a sync
//     entry otherwise (or on failure). Every successful mutation invalidates
//     its full cache group, aggregates included.
//   - Reconciler: drains the sync queue in FIFO order when connectivity
//     returns, replacing temporary ids with server-assigned ones.
//
// Repositories are parameterized by entity type: one Query/Command pair per
// entity, all sharing the process-wide cache and queue owned by pkg/di.
//
// # Error policy
//
// Transient remote failures are recovered internally, never surfaced.
// Malformed responses decode to empty results at the gateway boundary. The
// one short-circuit is ErrNoIdentity, returned before any I/O when no
// authenticated owner id exists.
package repository
