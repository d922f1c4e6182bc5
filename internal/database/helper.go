package database

import (
	"encoding/json"
	"fmt"

	"github.com/y0ug/hashguard/internal/database/models"
)

// entryKey builds the storage key for a normalized URL.
func entryKey(key string) string {
	return fmt.Sprintf("reputation:%s", key)
}

// encodeEntry strips response-only fields before serializing.
func encodeEntry(entry models.ReputationEntry) ([]byte, error) {
	entry.FromCache = false
	entry.Stale = false
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ReputationEntry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (models.ReputationEntry, error) {
	var entry models.ReputationEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("failed to unmarshal ReputationEntry: %w", err)
	}
	return entry, nil
}
