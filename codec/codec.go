// Package codec provides pluggable (de)serialization for values persisted by
// offcache: cache snapshot payloads and anything a caller routes through a
// blob store. Implementations must be deterministic enough to round-trip;
// byte-for-byte stability is only required if the caller hashes outputs.
package codec

// Codec encodes/decodes values V to []byte for persistence.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
