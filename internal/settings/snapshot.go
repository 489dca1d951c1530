package settings

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// dbConfigSnapshot is an immutable copy of the settings table.
type dbConfigSnapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var dbConfig atomic.Value

// StoreDBConfig replaces the settings snapshot.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		raw := make(json.RawMessage, len(value))
		copy(raw, value)
		copied[key] = raw
	}
	dbConfig.Store(&dbConfigSnapshot{updatedAt: updatedAt.UTC(), values: copied})
}

// DBConfigValue returns the raw JSON value stored for key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snapshot, ok := dbConfig.Load().(*dbConfigSnapshot)
	if !ok || snapshot == nil {
		return nil, false
	}
	value, okValue := snapshot.values[key]
	if !okValue || len(value) == 0 {
		return nil, false
	}
	return value, true
}

// DBConfigUpdatedAt reports the newest updated_at seen in the snapshot.
func DBConfigUpdatedAt() time.Time {
	snapshot, ok := dbConfig.Load().(*dbConfigSnapshot)
	if !ok || snapshot == nil {
		return time.Time{}
	}
	return snapshot.updatedAt
}
