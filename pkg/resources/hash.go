package resources

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash computes the normalized content hash of a document. The same
// logical content always hashes identically regardless of YAML key
// order or formatting, so hashes from the repository file, the registry
// row and the cluster object are directly comparable.
func Hash(doc *Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("kind=")
	b.WriteString(string(doc.Kind))
	b.WriteString("\nname=")
	b.WriteString(doc.Name)
	b.WriteString("\nlabels=")
	writeCanonical(&b, stringMapToAny(doc.Metadata.Labels))
	b.WriteString("\nspec=")
	writeCanonical(&b, doc.Spec)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two documents have identical normalized content.
func Equal(a, b *Document) bool {
	return Hash(a) == Hash(b)
}

// writeCanonical writes a deterministic rendering of a YAML value tree:
// map keys sorted, list order preserved, scalars via %v.
func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case nil:
		b.WriteString("null")
	default:
		fmt.Fprintf(b, "%v", t)
	}
}

func stringMapToAny(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
