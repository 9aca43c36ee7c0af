package collab

import "time"

// Versioned is an entity carrying its last modification time.
type Versioned interface {
	ModifiedAt() time.Time
}

// Resolve picks between a local and a remote version of the same entity:
// remote wins unless local is strictly newer. Last writer wins for the whole
// entity; timestamps come from each client's own clock, so a true tie goes
// to remote.
func Resolve[T Versioned](local, remote T) T {
	if local.ModifiedAt().After(remote.ModifiedAt()) {
		return local
	}
	return remote
}
