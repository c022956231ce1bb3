// Package canon provides canonical JSON serialization and
// domain-separated hashing for content that participates in the
// evidence chain or carries a signature.
//
// Canonical serialization follows RFC 8785:
//   - Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//   - No HTML escaping (< > & are NOT escaped)
//   - Strings NFC normalized at the serialization boundary
//
// Unlike a general-purpose encoder, floats are accepted only when the
// payload genuinely contains them (opaque caller payloads arrive from
// json.Unmarshal as float64); integral floats are rendered without a
// fractional part so that 5 and 5.0 hash identically.
//
// All chain and signature hashes are SHA-256 with a domain prefix,
// preventing a hash computed for one purpose from being replayed as
// another.
package canon
