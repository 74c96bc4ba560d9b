// Package cfn implements the wire-shaping core of the CloudFormation-style
// query API: flattened-parameter extraction, engine-to-API response
// projection, the typed fault vocabulary, and response envelope rendering.
package cfn

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Params is the flat parameter set of one inbound API call.
type Params map[string]string

// ParamsFromValues flattens parsed form/query values into a Params set.
// The query protocol sends every parameter single-valued; extra values for a
// repeated name are ignored.
func ParamsFromValues(v url.Values) Params {
	p := make(Params, len(v))
	for name, vals := range v {
		if len(vals) > 0 {
			p[name] = vals[0]
		}
	}
	return p
}

// Get returns the parameter value, or "" when absent.
func (p Params) Get(name string) string { return p[name] }

// Has reports whether the parameter was supplied at all.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Require returns the parameter value or a MissingParameter fault.
func (p Params) Require(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", MissingParameter("The request is missing required parameter " + name)
	}
	return v, nil
}

// ExtractPairs reconstructs a key→value mapping from the indexed member
// convention: <prefix>.member.<n>.<keyField> paired with
// <prefix>.member.<n>.<valueField>. The shorter <prefix>.<n>.<field> form is
// accepted too. Groups missing either field are skipped. Indices are applied
// in numeric order, so a key duplicated across groups keeps the value of the
// highest index.
func (p Params) ExtractPairs(prefix, keyField, valueField string) map[string]string {
	type group struct {
		key, value       string
		hasKey, hasValue bool
	}
	groups := make(map[int]*group)

	for name, val := range p {
		idx, field, ok := splitMemberName(name, prefix)
		if !ok {
			continue
		}
		g := groups[idx]
		if g == nil {
			g = &group{}
			groups[idx] = g
		}
		switch field {
		case keyField:
			g.key, g.hasKey = val, true
		case valueField:
			g.value, g.hasValue = val, true
		}
	}

	idxs := make([]int, 0, len(groups))
	for i := range groups {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	out := make(map[string]string, len(groups))
	for _, i := range idxs {
		g := groups[i]
		if g.hasKey && g.hasValue {
			out[g.key] = g.value
		}
	}
	return out
}

// splitMemberName splits "<prefix>.member.<n>.<field>" (or
// "<prefix>.<n>.<field>") into its index and field name.
func splitMemberName(name, prefix string) (int, string, bool) {
	rest, ok := strings.CutPrefix(name, prefix+".")
	if !ok {
		return 0, "", false
	}
	rest, _ = strings.CutPrefix(rest, "member.")
	idxStr, field, ok := strings.Cut(rest, ".")
	if !ok || field == "" {
		return 0, "", false
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return 0, "", false
	}
	return idx, field, true
}

// FlattenPairs is the client-side inverse of ExtractPairs: it spreads a
// mapping over the indexed member convention, numbering entries from 1 in
// sorted key order.
func FlattenPairs(prefix, keyField, valueField string, m map[string]string) map[string]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, 2*len(m))
	for i, k := range keys {
		base := prefix + ".member." + strconv.Itoa(i+1) + "."
		out[base+keyField] = k
		out[base+valueField] = m[k]
	}
	return out
}
