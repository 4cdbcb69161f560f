// Package model defines the domain records the offline-sync engine
// orchestrates: the generic Item (transactions and calorie entries share one
// shape), queued sync mutations, derived analysis snapshots, calendar
// periods, and the uniform RemoteResult every gateway response is decoded
// into at the transport boundary.
package model
