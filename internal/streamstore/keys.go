package streamstore

import "encoding/binary"

var (
	sep        = byte('/')
	rootPrefix = []byte("st/")
	counterKey = []byte("st/ctr")
	metaSuffix = []byte("/m")
	batchSeg   = []byte("/b/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func streamPrefix(id int64) []byte {
	k := make([]byte, 0, len(rootPrefix)+8+1)
	k = append(k, rootPrefix...)
	k = appendBE8(k, uint64(id))
	return k
}

// keyMeta builds the stream metadata key.
func keyMeta(id int64) []byte {
	return append(streamPrefix(id), metaSuffix...)
}

// keyBatch builds the batch key; the big-endian offset keeps batches ordered.
func keyBatch(id int64, baseOffset int64) []byte {
	k := streamPrefix(id)
	k = append(k, batchSeg...)
	return appendBE8(k, uint64(baseOffset))
}

// batchBounds returns [low, high) covering every batch key of a stream.
func batchBounds(id int64) (low, high []byte) {
	low = append(streamPrefix(id), batchSeg...)
	high = append(streamPrefix(id), batchSeg[:len(batchSeg)-1]...)
	high = append(high, sep+1)
	return low, high
}

// streamBounds returns [low, high) covering every key of a stream.
func streamBounds(id int64) (low, high []byte) {
	low = append(streamPrefix(id), sep)
	high = append(streamPrefix(id), sep+1)
	return low, high
}

func offsetFromKey(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k[len(k)-8:]))
}
