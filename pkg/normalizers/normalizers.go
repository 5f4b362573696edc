// Package normalizers provides the value normalizations used for identity lookups.
package normalizers

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var (
	registry   = make(map[string]Normalizer)
	registryMu sync.RWMutex
)

func init() {
	Register("trim", Trim)
	Register("lowercase", Lowercase)
	Register("fold", Fold)
	Register("nphone", NormalizePhone)
	Register("nname", NormalizeName)
	Register("nnational_id", NormalizeNationalID)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer; unknown names leave the value untouched.
func Apply(value, normalizer string) string {
	fn, ok := Get(normalizer)
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Fold lowercases, trims and strips diacritics ("Responsável" -> "responsavel").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// DigitsOnly keeps only ASCII digits
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeNationalID reduces a national id (CPF) to its digits.
func NormalizeNationalID(s string) string {
	return DigitsOnly(s)
}

// NormalizeName trims and collapses inner whitespace, keeping case and accents.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
