package hashchain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonical produces a stable, key-ordered JSON-like encoding of v,
// suitable for content-addressed hashing across independent
// implementations. It differs from encoding/json's default output in
// three ways that matter for cross-language reproducibility:
//
//   - object keys are sorted lexicographically
//   - floating point numbers are rendered with strconv's shortest
//     round-trip representation instead of Go's default float format
//   - there is no insignificant whitespace
//
// v is first round-tripped through encoding/json to normalize it into
// plain map[string]any/[]any/string/float64/bool/nil, then re-encoded
// canonically.
func Canonical(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical: marshal: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("canonical: unmarshal: %w", err)
	}

	var b strings.Builder
	encodeCanonical(&b, generic)
	return b.String(), nil
}

func encodeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	case string:
		encoded, _ := json.Marshal(val)
		b.Write(encoded)
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeCanonical(b, item)
		}
		b.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyEncoded, _ := json.Marshal(k)
			b.Write(keyEncoded)
			b.WriteByte(':')
			encodeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Unreachable for values that passed through encoding/json.
		encoded, _ := json.Marshal(val)
		b.Write(encoded)
	}
}
