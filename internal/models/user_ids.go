package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// UserIDs stores user identifiers as a JSON array.
type UserIDs []uint64

// Value implements driver.Valuer for database serialization.
func (ids UserIDs) Value() (driver.Value, error) {
	data, errMarshal := json.Marshal(ids.Clean())
	if errMarshal != nil {
		return nil, fmt.Errorf("user ids marshal: %w", errMarshal)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database deserialization.
func (ids *UserIDs) Scan(value any) error {
	if ids == nil {
		return fmt.Errorf("user ids scan: nil receiver")
	}
	var data []byte
	switch typed := value.(type) {
	case nil:
		*ids = UserIDs{}
		return nil
	case []byte:
		data = typed
	case string:
		data = []byte(typed)
	default:
		return fmt.Errorf("user ids scan: unsupported type %T", value)
	}
	if len(data) == 0 {
		*ids = UserIDs{}
		return nil
	}
	var list []uint64
	if errUnmarshal := json.Unmarshal(data, &list); errUnmarshal != nil {
		return fmt.Errorf("user ids scan: %w", errUnmarshal)
	}
	*ids = UserIDs(list).Clean()
	return nil
}

// Clean drops zero ids and duplicates, keeping first-seen order.
func (ids UserIDs) Clean() UserIDs {
	if len(ids) == 0 {
		return UserIDs{}
	}
	seen := make(map[uint64]struct{}, len(ids))
	cleaned := make(UserIDs, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		cleaned = append(cleaned, id)
	}
	return cleaned
}

// Contains reports whether id is present.
func (ids UserIDs) Contains(id uint64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
