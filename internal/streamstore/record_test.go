package streamstore

import (
	"bytes"
	"testing"

	"github.com/rzbill/strata/internal/stream"
)

func TestBatchChecksumDetectsCorruption(t *testing.T) {
	enc := encodeBatch(stream.RecordBatch{Count: 3, Payload: []byte("payload")})
	if _, err := decodeBatch(enc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	bad := append([]byte(nil), enc...)
	bad[len(bad)-6] ^= 0xff
	if _, err := decodeBatch(bad); err == nil {
		t.Fatalf("expected checksum failure")
	}
	if _, err := decodeBatch(enc[:5]); err == nil {
		t.Fatalf("expected short buffer failure")
	}
}

func TestPropertiesEncodeDeterministically(t *testing.T) {
	b := stream.RecordBatch{Count: 1, Properties: map[string]string{"z": "1", "a": "2", "m": "3"}}
	first := encodeBatch(b)
	for i := 0; i < 10; i++ {
		if !bytes.Equal(first, encodeBatch(b)) {
			t.Fatalf("encoding depends on map order")
		}
	}
}

func TestKeysOrderByOffset(t *testing.T) {
	if bytes.Compare(keyBatch(1, 255), keyBatch(1, 256)) >= 0 {
		t.Fatalf("batch keys not ordered by offset")
	}
	low, high := batchBounds(1)
	k := keyBatch(1, 1<<40)
	if bytes.Compare(k, low) < 0 || bytes.Compare(k, high) >= 0 {
		t.Fatalf("batch key outside bounds")
	}
	if m := keyMeta(1); bytes.Compare(m, low) >= 0 && bytes.Compare(m, high) < 0 {
		t.Fatalf("meta key inside batch bounds")
	}
	slow, shigh := streamBounds(1)
	if bytes.Compare(keyMeta(1), slow) < 0 || bytes.Compare(keyMeta(1), shigh) >= 0 {
		t.Fatalf("meta key outside stream bounds")
	}
	if bytes.Compare(keyMeta(2), shigh) < 0 {
		t.Fatalf("next stream inside bounds")
	}
	if offsetFromKey(k) != 1<<40 {
		t.Fatalf("offset round trip")
	}
}
