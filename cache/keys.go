package cache

import "strings"

// KeySeparator delimits cache key segments.
const KeySeparator = "::"

// Key joins a scope with its qualifying segments into a stable cache key,
// e.g. Key("items", "transaction", "monthly") -> "items::transaction::monthly".
// Keys are logical query identities, not serialized arguments: call sites own
// a small fixed vocabulary of them so invalidation groups can be enumerated.
func Key(scope string, parts ...string) string {
	if len(parts) == 0 {
		return scope
	}
	return scope + KeySeparator + strings.Join(parts, KeySeparator)
}
