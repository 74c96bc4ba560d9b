// Package policy evaluates the gateway's authorization policy with OPA.
// Policies are Rego modules in package cfn; a request is denied when
// data.cfn.deny is non-empty for its input document.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// ErrDenied is returned when the policy denies a request. Evaluation
// failures return other errors; callers must keep the two apart.
var ErrDenied = errors.New("denied by policy")

// Input is the document policies evaluate against, one per API request.
type Input struct {
	Tenant      string `json:"tenant"`
	Principal   string `json:"principal"`
	AccessKeyID string `json:"access_key_id"`
	Action      string `json:"action"`
}

// Enforcer holds the compiled policy query. A zero-policy enforcer allows
// everything, so a deployment without a policy directory runs open.
type Enforcer struct {
	query *rego.PreparedEvalQuery
	log   zerolog.Logger
}

// Load compiles every .rego file under dir. An empty dir argument or a
// missing directory yields an allow-all enforcer.
func Load(ctx context.Context, dir string, log zerolog.Logger) (*Enforcer, error) {
	e := &Enforcer{log: log.With().Str("component", "policy").Logger()}
	if dir == "" {
		return e, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		e.log.Warn().Str("dir", dir).Msg("policy directory missing, allowing all actions")
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading policy dir: %w", err)
	}
	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading policy %s: %w", path, err)
		}
		modules[entry.Name()] = string(src)
	}
	if len(modules) == 0 {
		return e, nil
	}
	if err := e.compile(ctx, modules); err != nil {
		return nil, err
	}
	e.log.Info().Int("modules", len(modules)).Str("dir", dir).Msg("policy modules loaded")
	return e, nil
}

// FromModules compiles in-memory Rego sources keyed by module name.
func FromModules(ctx context.Context, modules map[string]string, log zerolog.Logger) (*Enforcer, error) {
	e := &Enforcer{log: log.With().Str("component", "policy").Logger()}
	if len(modules) == 0 {
		return e, nil
	}
	if err := e.compile(ctx, modules); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Enforcer) compile(ctx context.Context, modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query("data.cfn.deny")}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}
	q, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compiling policies: %w", err)
	}
	e.query = &q
	return nil
}

// Enforce evaluates the policy for one request. nil means allowed; a denial
// wraps ErrDenied with the first deny reason.
func (e *Enforcer) Enforce(ctx context.Context, in Input) error {
	if e.query == nil {
		return nil
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return fmt.Errorf("policy evaluation: %w", err)
	}
	for _, result := range results {
		for _, expr := range result.Expressions {
			denies, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, reason := range denies {
				e.log.Debug().
					Str("action", in.Action).
					Str("principal", in.Principal).
					Str("tenant", in.Tenant).
					Msg("request denied by policy")
				return fmt.Errorf("%w: %v", ErrDenied, reason)
			}
		}
	}
	return nil
}
