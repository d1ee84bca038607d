// Package mapping translates between internal pair names ("BTC/USD") and the
// feed naming convention ("BTC-USD"), and resolves exchange name casing.
package mapping

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"crypto_feed/internal/domain"
)

const (
	InternalSeparator = "/"
	ExternalSeparator = "-"
)

// exchangeNameExceptions holds feed names that plain capitalization gets wrong.
// Keys are the capitalized form.
var exchangeNameExceptions = map[string]string{
	"Hitbtc": "HitBTC",
	"Bitmex": "BitMEX",
	"Okx":    "OKX",
}

// ExternalPair converts an internal pair to the feed pair name.
func ExternalPair(internal string) string {
	return strings.ReplaceAll(internal, InternalSeparator, ExternalSeparator)
}

// ExchangeName returns the feed's spelling of an exchange name.
func ExchangeName(name string) string {
	name = capitalize(name)
	if exception, ok := exchangeNameExceptions[name]; ok {
		return exception
	}
	return name
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// Mapping is an immutable one-to-one lookup between external and internal pair names.
type Mapping struct {
	toInternal map[string]string
	toExternal map[string]string
	external   []string
}

// New builds the mapping for the configured pairs, keeping their order.
func New(pairs []string) (Mapping, error) {
	m := Mapping{
		toInternal: make(map[string]string, len(pairs)),
		toExternal: make(map[string]string, len(pairs)),
		external:   make([]string, 0, len(pairs)),
	}

	for _, pair := range pairs {
		if strings.TrimSpace(pair) == "" {
			return Mapping{}, fmt.Errorf("empty pair: %w", domain.ErrInvalidSymbol)
		}
		ext := ExternalPair(pair)
		if prev, ok := m.toInternal[ext]; ok {
			return Mapping{}, fmt.Errorf("pairs %q and %q both map to %q: %w", prev, pair, ext, domain.ErrInvalidSymbol)
		}
		m.toInternal[ext] = pair
		m.toExternal[pair] = ext
		m.external = append(m.external, ext)
	}

	return m, nil
}

// Internal resolves a feed pair name.
func (m Mapping) Internal(external string) (string, bool) {
	p, ok := m.toInternal[external]
	return p, ok
}

// External returns the feed name of a configured pair.
func (m Mapping) External(internal string) (string, bool) {
	p, ok := m.toExternal[internal]
	return p, ok
}

// ExternalPairs lists feed pair names in configuration order.
func (m Mapping) ExternalPairs() []string {
	return append([]string(nil), m.external...)
}

// InternalPairs lists configured pair names in configuration order.
func (m Mapping) InternalPairs() []string {
	out := make([]string, len(m.external))
	for i, ext := range m.external {
		out[i] = m.toInternal[ext]
	}
	return out
}

func (m Mapping) Len() int {
	return len(m.external)
}
