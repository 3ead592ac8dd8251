package core

import (
	"fmt"
	"sync"
)

var (
	ownersMu sync.Mutex
	owners   []interface{}
)

// IdentifierAcquireNewID hands out the lowest free id and records owner
// against it. Ids are reused after IdentifierReleaseID.
func IdentifierAcquireNewID(owner interface{}) uint32 {
	ownersMu.Lock()
	defer ownersMu.Unlock()

	if len(owners) == 0 {
		owners = make([]interface{}, 0, 100)
	}
	for i := range owners {
		// Existing free spot. Take it.
		if owners[i] == nil {
			owners[i] = owner
			return uint32(i)
		}
	}

	owners = append(owners, owner)
	return uint32(len(owners) - 1)
}

func IdentifierReleaseID(id uint32) error {
	ownersMu.Lock()
	defer ownersMu.Unlock()

	if len(owners) == 0 {
		return fmt.Errorf("identifier_release_id called before initialization. Nothing was done")
	}
	if int(id) >= len(owners) {
		return fmt.Errorf("identifier_release_id: id '%d' out of range (max=%d). Nothing was done", id, len(owners)-1)
	}

	// Just zero out the entry, making it available for use.
	owners[id] = nil
	return nil
}

// IdentifierOwner returns whatever was registered under id, or nil.
func IdentifierOwner(id uint32) interface{} {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	if int(id) >= len(owners) {
		return nil
	}
	return owners[id]
}
