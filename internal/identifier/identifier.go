// Package identifier implements the opaque resource identifiers exchanged on
// the wire surface. A stack identity is encoded as an ARN-style token
//
//	arn:stackgate:cfn::<tenant>:stacks/<name>/<id><path>
//
// which is losslessly interconvertible with its structured form. Event
// identities reuse the same scheme with a path of the form
// /resources/<resource>/events/<event> and expose only the trailing event id
// to callers.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const arnPrefix = "arn:stackgate:cfn::"

// ErrMalformed is returned when a token does not match the identifier scheme.
var ErrMalformed = errors.New("malformed identifier")

// ID is a structured resource identifier. Name and ID must be non-empty and
// free of "/"; Tenant must be free of ":"; Path is empty or begins with "/".
type ID struct {
	Tenant string
	Name   string
	ID     string
	Path   string
}

// New constructs an ID, normalizing a non-empty path to begin with "/".
func New(tenant, name, id, path string) ID {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return ID{Tenant: tenant, Name: name, ID: id, Path: path}
}

// NewEvent constructs the identity of an event belonging to a stack resource.
func NewEvent(stack ID, resourceName, eventID string) ID {
	return New(stack.Tenant, stack.Name, stack.ID,
		fmt.Sprintf("/resources/%s/events/%s", resourceName, eventID))
}

// ARN returns the encoded token form. Stable across versions: tokens issued
// earlier must keep decoding, so the format never changes shape.
func (i ID) ARN() string {
	return fmt.Sprintf("%s%s:stacks/%s/%s%s", arnPrefix, i.Tenant, i.Name, i.ID, i.Path)
}

// EventID returns the short event token, the last path segment. Empty for a
// plain stack identity.
func (i ID) EventID() string {
	if i.Path == "" {
		return ""
	}
	return i.Path[strings.LastIndex(i.Path, "/")+1:]
}

// Record returns the field form sent to the engine as a stack identity.
func (i ID) Record() map[string]any {
	return map[string]any{
		"tenant":     i.Tenant,
		"stack_name": i.Name,
		"stack_id":   i.ID,
		"path":       i.Path,
	}
}

// Parse decodes a token back into its structured form. Any token that does
// not match the scheme fails with ErrMalformed.
func Parse(token string) (ID, error) {
	rest, ok := strings.CutPrefix(token, arnPrefix)
	if !ok {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	tenant, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	rest, ok = strings.CutPrefix(rest, "stacks/")
	if !ok {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	name, rest, ok := strings.Cut(rest, "/")
	if !ok {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	id, path, found := strings.Cut(rest, "/")
	if found {
		path = "/" + path
	}
	if name == "" || id == "" {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	return ID{Tenant: tenant, Name: name, ID: id, Path: path}, nil
}

// FromRecord builds an ID from engine-returned identifier fields. A record
// with a missing required field, a non-string value, or any field outside
// the identifier vocabulary is rejected: callers rely on that rejection to
// tell identifier results apart from other engine payloads.
func FromRecord(rec map[string]any) (ID, error) {
	var id ID
	seen := make(map[string]bool, len(rec))
	for k, v := range rec {
		s, ok := v.(string)
		if !ok {
			return ID{}, fmt.Errorf("%w: field %s is not a string", ErrMalformed, k)
		}
		switch k {
		case "tenant":
			id.Tenant = s
		case "stack_name":
			id.Name = s
		case "stack_id":
			id.ID = s
		case "path":
			id.Path = s
		default:
			return ID{}, fmt.Errorf("%w: unexpected field %s", ErrMalformed, k)
		}
		seen[k] = true
	}
	if !seen["tenant"] || !seen["stack_name"] || !seen["stack_id"] {
		return ID{}, fmt.Errorf("%w: incomplete identifier record", ErrMalformed)
	}
	if id.Name == "" || id.ID == "" {
		return ID{}, fmt.Errorf("%w: empty stack_name or stack_id", ErrMalformed)
	}
	if id.Path != "" && !strings.HasPrefix(id.Path, "/") {
		id.Path = "/" + id.Path
	}
	return id, nil
}

// LookupFunc resolves a bare stack name to an identity, normally by asking
// the engine.
type LookupFunc func(ctx context.Context, name string) (ID, error)

// Resolve accepts either an encoded token or a bare stack name. A well-formed
// token is decoded locally and never touches the lookup; anything else is
// treated as a name and resolved through exactly one lookup call, whose
// failure (typically not-found) is returned unchanged.
func Resolve(ctx context.Context, lookup LookupFunc, nameOrToken string) (ID, error) {
	if id, err := Parse(nameOrToken); err == nil {
		return id, nil
	}
	return lookup(ctx, nameOrToken)
}

// ProjectTokens rewrites the identifier-bearing fields of a response document
// into their encoded forms: a StackId holding raw identifier fields becomes
// the ARN token, an EventId holding raw identifier fields becomes the short
// event id. Only these two known fields are touched; the function never
// recurses into other values. Fields already in encoded form pass through.
func ProjectTokens(doc map[string]any) map[string]any {
	if raw, ok := doc["StackId"].(map[string]any); ok {
		if id, err := FromRecord(raw); err == nil {
			doc["StackId"] = id.ARN()
		}
	}
	if raw, ok := doc["EventId"].(map[string]any); ok {
		if id, err := FromRecord(raw); err == nil {
			doc["EventId"] = id.EventID()
		}
	}
	return doc
}
