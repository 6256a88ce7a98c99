// Package fingerprint derives a stable digest from the semantic fields of a payment
// request. Two requests with equal fields hash equally; any field change changes the hash.
//
// Fields are serialized sorted by key, each value carrying a type tag and a length
// prefix, so "123" and 123 differ and no value can forge a separator.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	tagString = "s"
	tagInt    = "i"
	tagNull   = "n"
)

type value struct {
	tag string
	raw string
}

// Builder collects named fields. Adding a key twice keeps the last value.
type Builder struct {
	fields map[string]value
}

func New() *Builder {
	return &Builder{fields: make(map[string]value)}
}

// String adds a value verbatim.
func (b *Builder) String(key, v string) *Builder {
	b.fields[key] = value{tag: tagString, raw: v}
	return b
}

// Text adds trimmed free text.
func (b *Builder) Text(key, v string) *Builder {
	return b.String(key, strings.TrimSpace(v))
}

// OptText adds trimmed free text, recording null for nil or blank input.
func (b *Builder) OptText(key string, v *string) *Builder {
	if v == nil || strings.TrimSpace(*v) == "" {
		return b.Null(key)
	}
	return b.Text(key, *v)
}

// OptString adds a value verbatim, recording null for nil or empty input.
func (b *Builder) OptString(key string, v *string) *Builder {
	if v == nil || *v == "" {
		return b.Null(key)
	}
	return b.String(key, *v)
}

// Currency adds a trimmed, lower-cased currency code.
func (b *Builder) Currency(key, v string) *Builder {
	return b.String(key, NormalizeCurrency(v))
}

func (b *Builder) Int(key string, v int64) *Builder {
	b.fields[key] = value{tag: tagInt, raw: strconv.FormatInt(v, 10)}
	return b
}

func (b *Builder) Null(key string) *Builder {
	b.fields[key] = value{tag: tagNull}
	return b
}

// Canonical returns the serialization the digest is computed over.
func (b *Builder) Canonical() string {
	keys := make([]string, 0, len(b.fields))
	for k := range b.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v := b.fields[k]
		fmt.Fprintf(&sb, "%d:%s|%s|%d:%s;", len(k), k, v.tag, len(v.raw), v.raw)
	}
	return sb.String()
}

// Sum returns the hex SHA-256 digest of the canonical form.
func (b *Builder) Sum() string {
	sum := sha256.Sum256([]byte(b.Canonical()))
	return hex.EncodeToString(sum[:])
}

// NormalizeCurrency trims and lower-cases a currency code, defaulting to usd.
func NormalizeCurrency(v string) string {
	c := strings.ToLower(strings.TrimSpace(v))
	if c == "" {
		return "usd"
	}
	return c
}
