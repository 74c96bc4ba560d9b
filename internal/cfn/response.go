package cfn

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
)

// xmlNamespace is the namespace callers of the emulated surface expect on
// response roots.
const xmlNamespace = "http://cloudformation.amazonaws.com/doc/2010-05-15/"

// FormatResponse wraps an action result in the response envelope:
//
//	{"<Action>Response": {"<Action>Result": result,
//	                      "ResponseMetadata": {"RequestId": id}}}
func FormatResponse(action string, result any, requestID string) Document {
	return Document{
		action + "Response": Document{
			action + "Result": result,
			"ResponseMetadata": Document{
				"RequestId": requestID,
			},
		},
	}
}

// FormatFault renders a fault as the query-protocol error document.
func FormatFault(f *Fault, requestID string) Document {
	return Document{
		"ErrorResponse": Document{
			"Error": Document{
				"Type":    f.SenderType(),
				"Code":    f.Code,
				"Message": f.Detail,
			},
			"RequestId": requestID,
		},
	}
}

// MarshalXML renders a response document as query-protocol XML: one element
// per key in sorted order, sequences as repeated <member> children, and the
// namespace on the root element. Output is deterministic for a given
// document.
func MarshalXML(doc Document) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	for _, k := range sortedKeys(doc) {
		writeXMLElement(&b, k, doc[k], ` xmlns="`+xmlNamespace+`"`)
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// MarshalJSON renders a response document as JSON for callers that asked for
// it with ContentType=JSON.
func MarshalJSON(doc Document) []byte {
	out, err := json.Marshal(doc)
	if err != nil {
		// Documents are built from JSON-decoded values and strings; this
		// cannot fail for well-formed responses.
		return []byte(`{"ErrorResponse":{"Error":{"Type":"Server","Code":"InternalFailure"}}}`)
	}
	return out
}

func writeXMLElement(b *bytes.Buffer, name string, v any, attrs string) {
	switch val := v.(type) {
	case map[string]any:
		b.WriteString("<" + name + attrs + ">")
		for _, k := range sortedKeys(val) {
			writeXMLElement(b, k, val[k], "")
		}
		b.WriteString("</" + name + ">")
	case []any:
		b.WriteString("<" + name + attrs + ">")
		for _, e := range val {
			writeXMLElement(b, "member", e, "")
		}
		b.WriteString("</" + name + ">")
	case nil:
		b.WriteString("<" + name + attrs + "/>")
	default:
		b.WriteString("<" + name + attrs + ">")
		xml.EscapeText(b, []byte(scalarString(val)))
		b.WriteString("</" + name + ">")
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
