// Package store holds the storage-collaborator implementations the
// sync engine writes mirrored records and sync runs into.
package store

import (
	"encoding/json"
	"strconv"
)

// ExternalID pulls the provider's record id out of a raw item so
// records can be de-duplicated on upsert. Items without an id field
// (synthetic single-object pages) hash to their endpoint offset by the
// caller instead.
func ExternalID(item json.RawMessage) string {
	var probe struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(item, &probe); err != nil {
		return ""
	}

	switch v := probe.ID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}
