package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

func encodeRecord(record any) (json.RawMessage, error) {
	if raw, ok := record.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("encode record: invalid json")
		}
		return append(json.RawMessage(nil), raw...), nil
	}
	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

// mergePatch applies patch to doc as a top-level merge.
func mergePatch(doc json.RawMessage, patch Patch) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range patch {
		if v == nil {
			delete(m, k)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %q: %w", k, err)
		}
		m[k] = b
	}
	return json.Marshal(m)
}

func checkKey(collection, id string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("collection required")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id required")
	}
	return nil
}
