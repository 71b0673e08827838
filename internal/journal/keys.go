package journal

import (
	"encoding/binary"
)

// Keyspace helpers. The journal lives under its own top-level prefix so it
// never collides with queue state.
//
// Layout (byte-wise, lexicographically sortable):
// - j/{queue}/m
// - j/{queue}/e/{seq_be8}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// metaKey builds the per-queue metadata key holding the last sequence.
func metaKey(queue string) []byte {
	k := make([]byte, 0, len(queue)+8)
	k = append(k, "j/"...)
	k = append(k, queue...)
	k = append(k, "/m"...)
	return k
}

// entryKey builds the entry key with a big-endian sequence for ordering.
func entryKey(queue string, seq uint64) []byte {
	k := make([]byte, 0, len(queue)+16)
	k = append(k, "j/"...)
	k = append(k, queue...)
	k = append(k, "/e/"...)
	k = appendBE8(k, seq)
	return k
}

// seqFromEntryKey extracts the trailing sequence number.
func seqFromEntryKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
