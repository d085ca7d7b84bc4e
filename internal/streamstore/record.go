package streamstore

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sort"

	"github.com/rzbill/strata/internal/stream"
)

// Batch value encoding:
//
//	count_be4 | base_ts_be8 | uvarint nprops | (uvarint klen | k | uvarint vlen | v)* | payload | crc32c
//
// The checksum covers everything before it.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var errCorruptBatch = errors.New("streamstore: corrupt batch")

func encodeBatch(b stream.RecordBatch) []byte {
	size := 4 + 8 + 10 + len(b.Payload) + 4
	keys := make([]string, 0, len(b.Properties))
	for k, v := range b.Properties {
		keys = append(keys, k)
		size += 20 + len(k) + len(v)
	}
	sort.Strings(keys)

	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(b.Count))
	out = binary.BigEndian.AppendUint64(out, uint64(b.BaseTimestamp))
	out = binary.AppendUvarint(out, uint64(len(keys)))
	for _, k := range keys {
		v := b.Properties[k]
		out = binary.AppendUvarint(out, uint64(len(k)))
		out = append(out, k...)
		out = binary.AppendUvarint(out, uint64(len(v)))
		out = append(out, v...)
	}
	out = append(out, b.Payload...)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
}

func decodeBatch(buf []byte) (stream.RecordBatch, error) {
	if len(buf) < 4+8+1+4 {
		return stream.RecordBatch{}, errCorruptBatch
	}
	body := buf[:len(buf)-4]
	if crc32.Checksum(body, castagnoli) != binary.BigEndian.Uint32(buf[len(buf)-4:]) {
		return stream.RecordBatch{}, errCorruptBatch
	}
	var b stream.RecordBatch
	b.Count = int32(binary.BigEndian.Uint32(body))
	b.BaseTimestamp = int64(binary.BigEndian.Uint64(body[4:]))
	rest := body[12:]

	n, w := binary.Uvarint(rest)
	if w <= 0 || n > uint64(len(rest)) {
		return stream.RecordBatch{}, errCorruptBatch
	}
	rest = rest[w:]
	if n > 0 {
		b.Properties = make(map[string]string, n)
	}
	readString := func() (string, bool) {
		l, w := binary.Uvarint(rest)
		if w <= 0 || uint64(len(rest)-w) < l {
			return "", false
		}
		s := string(rest[w : w+int(l)])
		rest = rest[w+int(l):]
		return s, true
	}
	for i := uint64(0); i < n; i++ {
		k, ok := readString()
		if !ok {
			return stream.RecordBatch{}, errCorruptBatch
		}
		v, ok := readString()
		if !ok {
			return stream.RecordBatch{}, errCorruptBatch
		}
		b.Properties[k] = v
	}
	b.Payload = append([]byte(nil), rest...)
	return b, nil
}
