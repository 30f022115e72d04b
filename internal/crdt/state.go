package crdt

import (
	"encoding/json"
	"fmt"
)

// EncodeState serializes a full store snapshot for the sync-canvas path
// and the agent's local cache.
func EncodeState(objects map[string]Object) ([]byte, error) {
	data, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState parses a serialized snapshot.
func DecodeState(data []byte) (map[string]Object, error) {
	objects := make(map[string]Object)
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return objects, nil
}
