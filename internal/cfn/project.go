package cfn

import (
	"sort"
	"strings"
)

// Document is a response fragment keyed by API-surface field names.
type Document = map[string]any

// KeyPair maps one engine-native field to its API-surface name. Each action
// declares its projection as an ordered []KeyPair table next to its handler.
type KeyPair struct {
	Engine string
	API    string
}

// ReformatKeys projects a record through a keymap. The keymap is a strict
// allow-list: engine fields it does not name are dropped, and pairs whose
// engine field is absent from the record contribute nothing.
func ReformatKeys(keymap []KeyPair, record map[string]any) Document {
	out := make(Document, len(keymap))
	for _, kp := range keymap {
		if v, ok := record[kp.Engine]; ok {
			out[kp.API] = v
		}
	}
	return out
}

// DeriveStatus joins a record's separate action and status fields into the
// composite status string the API exposes. The engine never pre-joins them;
// the same rule applies to stack, event, and resource records.
func DeriveStatus(record map[string]any, actionKey, statusKey string) string {
	action, _ := record[actionKey].(string)
	status, _ := record[statusKey].(string)
	return action + "_" + status
}

// SanitizeKeys returns a copy of doc with every ":" in mapping keys replaced
// by "." at any depth, so keys cannot be read as namespaced markup by the XML
// serializer. Sequences are walked element-wise into their mapping elements;
// scalar values are never touched. The input is left unmodified.
func SanitizeKeys(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[strings.ReplaceAll(k, ":", ".")] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return SanitizeKeys(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}

// ParametersToPairs converts an internal key→value mapping into the
// list-of-pairs output shape, ordered by key for stable serialization.
func ParametersToPairs(params map[string]any) []any {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, Document{
			"ParameterKey":   k,
			"ParameterValue": params[k],
		})
	}
	return out
}
