package streamstore

import (
	"encoding/json"
	"fmt"
)

// Meta is the persisted state of one stream.
type Meta struct {
	StreamID     int64             `json:"streamId"`
	Epoch        int64             `json:"epoch"`
	ReplicaCount int               `json:"replicaCount"`
	Tags         map[string]string `json:"tags,omitempty"`
	StartOffset  int64             `json:"startOffset"`
	NextOffset   int64             `json:"nextOffset"`
	CreatedAtMs  int64             `json:"createdAtMs"`
}

func encodeMeta(m Meta) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMeta(b []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("streamstore: decode meta: %w", err)
	}
	return m, nil
}
