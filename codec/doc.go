// Package codec converts typed values to and from the byte slices stored by
// cache backends.
//
// JSON is the default. Msgpack and CBOR trade readability for size; use
// NewCBOR(true) when byte-stable output matters.
package codec
