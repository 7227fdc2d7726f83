package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity is the SequenceMatcher ratio between the canonical JSON texts
// of two step lists, compared character by character. It is 1 for two empty
// lists.
func Similarity(gold, candidate any) (float64, error) {
	a, err := CanonicalJSON(gold)
	if err != nil {
		return 0, err
	}
	b, err := CanonicalJSON(candidate)
	if err != nil {
		return 0, err
	}
	return difflib.NewMatcher(chars(a), chars(b)).Ratio(), nil
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// CanonicalJSON renders v with sorted keys, ", " and ": " separators, and
// everything outside printable ASCII escaped, so equal documents always
// produce equal text. Floats always carry a fraction or exponent; decode
// with json.Number to keep integer literals apart from floats.
func CanonicalJSON(v any) (string, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		writeString(b, val)
	case json.Number:
		return writeNumberLiteral(b, val)
	case float64:
		writeFloat(b, val)
	case float32:
		writeFloat(b, float64(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(val, 10))
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeString(b, k)
			b.WriteString(": ")
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("canonical json: unsupported type %T", v)
	}
	return nil
}

// writeNumberLiteral keeps integer literals exact and renders the rest as floats.
func writeNumberLiteral(b *strings.Builder, n json.Number) error {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		i, ok := new(big.Int).SetString(lit, 10)
		if !ok {
			return fmt.Errorf("canonical json: bad number %q", lit)
		}
		b.WriteString(i.String())
		return nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("canonical json: bad number %q", lit)
	}
	writeFloat(b, f)
	return nil
}

// writeFloat uses the shortest round-trip digits, positional for exponents
// in [-4, 16) with at least one fractional digit, scientific otherwise.
func writeFloat(b *strings.Builder, f float64) {
	switch {
	case math.IsNaN(f):
		b.WriteString("NaN")
		return
	case math.IsInf(f, 1):
		b.WriteString("Infinity")
		return
	case math.IsInf(f, -1):
		b.WriteString("-Infinity")
		return
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	if exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:]); err == nil && f != 0 && (exp < -4 || exp >= 16) {
		b.WriteString(sci)
		return
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(fixed, '.') {
		fixed += ".0"
	}
	b.WriteString(fixed)
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(b, `\u%04x\u%04x`, hi, lo)
		case r < 0x20 || r >= 0x7f:
			fmt.Fprintf(b, `\u%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

// round2 rounds to two decimals, the precision of every reported metric.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
