package reconcile

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/aquilu/jacobo/internal/table"
)

// DefaultSynonyms returns the built-in header dictionary. Keys are matched
// literally after HeaderKey normalization.
func DefaultSynonyms() map[string]string {
	return map[string]string{
		"editorial":     table.FieldPublisher,
		"publicador":    table.FieldPublisher,
		"publisher":     table.FieldPublisher,
		"autor":         table.FieldAuthor,
		"autor(a)":      table.FieldAuthor,
		"autor/a":       table.FieldAuthor,
		"author":        table.FieldAuthor,
		"categoria":     table.FieldCategoria,
		"categoría":     table.FieldCategoria,
		"area tematica": table.FieldCategoria,
		"área temática": table.FieldCategoria,
	}
}

// HeaderKey normalizes a header for dictionary lookup: surrounding and
// repeated inner whitespace is dropped, the text is NFC-composed and
// lower-cased. Accents are kept.
func HeaderKey(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(norm.NFC.String(s))
}

// mergeSynonyms layers extra entries over the defaults. Entries whose value
// is not a target name are ignored.
func mergeSynonyms(extra map[string]string, targets []string) map[string]string {
	valid := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		valid[t] = struct{}{}
	}
	out := make(map[string]string)
	for k, v := range DefaultSynonyms() {
		if _, ok := valid[v]; ok {
			out[HeaderKey(k)] = v
		}
	}
	for k, v := range extra {
		key := HeaderKey(k)
		if key == "" {
			continue
		}
		if _, ok := valid[v]; !ok {
			continue
		}
		out[key] = v
	}
	return out
}

// cleanHeader trims whitespace and a leading byte order mark.
func cleanHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.TrimSpace(h)
}
