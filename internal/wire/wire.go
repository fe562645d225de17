// Package wire defines the binary framing for persisted offcache blobs:
// cache snapshots and the outbox journal. Both are length-prefixed record
// lists behind a magic/version header so corrupt or foreign blobs are
// detected and discarded rather than half-decoded.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version      byte = 1
	kindSnapshot byte = 1
	kindJournal  byte = 2
)

var (
	ErrCorrupt = errors.New("offcache: corrupt blob")
	magic4     = [...]byte{'O', 'F', 'C', 'S'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// SnapshotEntry is one persisted cache entry. Payload is the codec-encoded
// value; FetchedAt is unix nanoseconds; Origin is the provenance tag byte.
type SnapshotEntry struct {
	Key       string
	FetchedAt int64
	Origin    byte
	Payload   []byte
}

// Snapshot layout:
//
//	magic(4) | ver(1) | kind(1=snapshot) | n(u32 be)
//	keyLen(u16) | key | fetchedAt(i64 be) | origin(1) | vlen(u32 be) | payload  * n
func EncodeSnapshot(entries []SnapshotEntry) []byte {
	total := 4 + 1 + 1 + 4
	for _, e := range entries {
		total += 2 + len(e.Key) + 8 + 1 + 4 + len(e.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSnapshot)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(entries)))
	buf.Write(u4[:])

	for _, e := range entries {
		if l := len(e.Key); l == 0 || l > 0xFFFF {
			panic("wire: invalid key length in snapshot")
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(e.Key)))
		buf.Write(u2[:])
		buf.WriteString(e.Key)

		binary.BigEndian.PutUint64(u8[:], uint64(e.FetchedAt))
		buf.Write(u8[:])

		buf.WriteByte(e.Origin)

		binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
		buf.Write(u4[:])
		buf.Write(e.Payload)
	}

	return buf.Bytes()
}

func DecodeSnapshot(b []byte) ([]SnapshotEntry, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindSnapshot {
		return nil, ErrCorrupt
	}

	off := 6
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n < 0 {
		return nil, ErrCorrupt
	}

	entries := make([]SnapshotEntry, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen <= 0 || klen > len(b)-off {
			return nil, ErrCorrupt
		}
		key := string(b[off : off+klen])
		off += klen

		if off+8+1+4 > len(b) {
			return nil, ErrCorrupt
		}
		fetchedAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		origin := b[off]
		off++
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return nil, ErrCorrupt
		}
		payload := b[off : off+vlen]
		off += vlen

		entries = append(entries, SnapshotEntry{
			Key:       key,
			FetchedAt: fetchedAt,
			Origin:    origin,
			Payload:   payload,
		})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return entries, nil
}

// JournalRecord is one persisted pending action. Payload is the raw
// JSON-serializable action payload, stored byte-for-byte.
type JournalRecord struct {
	ID        string
	Kind      string
	CreatedAt int64 // unix nanoseconds
	Attempts  uint32
	LastError string
	Payload   []byte
}

// Journal layout:
//
//	magic(4) | ver(1) | kind(2=journal) | n(u32 be)
//	idLen(u16) | id | kindLen(u16) | kind | createdAt(i64 be) | attempts(u32 be)
//	  | errLen(u16) | lastError | vlen(u32 be) | payload  * n
func EncodeJournal(records []JournalRecord) []byte {
	total := 4 + 1 + 1 + 4
	for _, r := range records {
		total += 2 + len(r.ID) + 2 + len(r.Kind) + 8 + 4 + 2 + len(r.LastError) + 4 + len(r.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindJournal)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(records)))
	buf.Write(u4[:])

	writeStr16 := func(s string) {
		binary.BigEndian.PutUint16(u2[:], uint16(len(s)))
		buf.Write(u2[:])
		buf.WriteString(s)
	}

	for _, r := range records {
		if l := len(r.ID); l == 0 || l > 0xFFFF {
			panic("wire: invalid id length in journal")
		}
		if len(r.Kind) > 0xFFFF || len(r.LastError) > 0xFFFF {
			panic("wire: oversized field in journal")
		}
		writeStr16(r.ID)
		writeStr16(r.Kind)

		binary.BigEndian.PutUint64(u8[:], uint64(r.CreatedAt))
		buf.Write(u8[:])

		binary.BigEndian.PutUint32(u4[:], r.Attempts)
		buf.Write(u4[:])

		writeStr16(r.LastError)

		binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
		buf.Write(u4[:])
		buf.Write(r.Payload)
	}

	return buf.Bytes()
}

func DecodeJournal(b []byte) ([]JournalRecord, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindJournal {
		return nil, ErrCorrupt
	}

	off := 6
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n < 0 {
		return nil, ErrCorrupt
	}

	readStr16 := func() (string, bool) {
		if off+2 > len(b) {
			return "", false
		}
		l := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if l > len(b)-off {
			return "", false
		}
		s := string(b[off : off+l])
		off += l
		return s, true
	}

	records := make([]JournalRecord, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		id, ok := readStr16()
		if !ok || id == "" {
			return nil, ErrCorrupt
		}
		kind, ok := readStr16()
		if !ok {
			return nil, ErrCorrupt
		}

		if off+8+4 > len(b) {
			return nil, ErrCorrupt
		}
		createdAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		attempts := binary.BigEndian.Uint32(b[off : off+4])
		off += 4

		lastErr, ok := readStr16()
		if !ok {
			return nil, ErrCorrupt
		}

		if off+4 > len(b) {
			return nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return nil, ErrCorrupt
		}
		payload := b[off : off+vlen]
		off += vlen

		records = append(records, JournalRecord{
			ID:        id,
			Kind:      kind,
			CreatedAt: createdAt,
			Attempts:  attempts,
			LastError: lastErr,
			Payload:   payload,
		})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return records, nil
}
