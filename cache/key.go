package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Key defaults.
const (
	DefaultVersion   = "v1"
	DefaultNamespace = "default"
)

// DigestLength is the length of the hex digest suffix of every key.
const DigestLength = sha256.Size * 2

// fieldSep separates preimage fields. Every field is also length-prefixed,
// so the preimage encoding is injective regardless of field contents.
const fieldSep = '\x1f'

var (
	// ErrMissingField matches any *MissingFieldError.
	ErrMissingField = errors.New("cache: missing required field")

	// ErrInvalidKeyPart is returned when a namespace or version cannot be
	// embedded in clear text.
	ErrInvalidKeyPart = errors.New("cache: invalid namespace or version")
)

// MissingFieldError names the required builder field that was not set.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("cache: missing required field %q", e.Field)
}

// Is reports whether target is ErrMissingField.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// KeyBuilder derives deterministic cache keys from request semantics.
//
// Keys have the form "{namespace}:{version}:{sha256-hex}". The digest covers
// url, method, version, and the options sorted by key, so option insertion
// order never changes the key. Namespace and version stay in clear text to
// isolate subsystems sharing one backend.
//
// A KeyBuilder is not safe for concurrent mutation; Build itself is pure.
type KeyBuilder struct {
	url       string
	method    string
	version   string
	namespace string
	options   map[string]string
}

// NewKeyBuilder creates a builder with the default version and namespace.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{
		version:   DefaultVersion,
		namespace: DefaultNamespace,
		options:   make(map[string]string),
	}
}

// URL sets the request URL (required).
func (b *KeyBuilder) URL(u string) *KeyBuilder {
	b.url = u
	return b
}

// Method sets the request method (required).
func (b *KeyBuilder) Method(m string) *KeyBuilder {
	b.method = m
	return b
}

// Version sets the key version.
func (b *KeyBuilder) Version(v string) *KeyBuilder {
	b.version = v
	return b
}

// Namespace sets the key namespace.
func (b *KeyBuilder) Namespace(ns string) *KeyBuilder {
	b.namespace = ns
	return b
}

// Option sets a single option. Setting the same key twice keeps the last value.
func (b *KeyBuilder) Option(key, value string) *KeyBuilder {
	b.options[key] = value
	return b
}

// Options merges opts into the builder's options.
func (b *KeyBuilder) Options(opts map[string]string) *KeyBuilder {
	for k, v := range opts {
		b.options[k] = v
	}
	return b
}

// Build returns the cache key, or a *MissingFieldError when url or method is unset.
func (b *KeyBuilder) Build() (string, error) {
	if b.url == "" {
		return "", &MissingFieldError{Field: "url"}
	}
	if b.method == "" {
		return "", &MissingFieldError{Field: "method"}
	}
	if err := validateKeyPart("namespace", b.namespace); err != nil {
		return "", err
	}
	if err := validateKeyPart("version", b.version); err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(b.preimage()))
	return b.namespace + ":" + b.version + ":" + hex.EncodeToString(sum[:]), nil
}

func (b *KeyBuilder) preimage() string {
	keys := make([]string, 0, len(b.options))
	for k := range b.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	writeField(&sb, b.url)
	writeField(&sb, b.method)
	writeField(&sb, b.version)
	for _, k := range keys {
		writeField(&sb, k)
		writeField(&sb, b.options[k])
	}
	return sb.String()
}

func writeField(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
	sb.WriteByte(fieldSep)
}

func validateKeyPart(name, v string) error {
	if v == "" || strings.ContainsAny(v, ":\n\r") {
		return fmt.Errorf("%w: %s %q", ErrInvalidKeyPart, name, v)
	}
	return nil
}

// ParsedKey is a cache key split into its parts.
type ParsedKey struct {
	Namespace string
	Version   string
	Digest    string
}

// ParseKey splits a key produced by KeyBuilder.Build.
func ParseKey(key string) (ParsedKey, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return ParsedKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	digest := parts[2]
	if len(digest) != DigestLength {
		return ParsedKey{}, fmt.Errorf("%w: digest length %d", ErrInvalidKey, len(digest))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return ParsedKey{}, fmt.Errorf("%w: digest is not hex", ErrInvalidKey)
	}
	return ParsedKey{Namespace: parts[0], Version: parts[1], Digest: digest}, nil
}

// NamespaceOf returns the namespace portion of key, or "" when key has none.
func NamespaceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return ""
}
