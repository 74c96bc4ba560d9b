// Package enginetest provides test doubles for the engine link: a recording
// Fake that satisfies engine.Client in-process, and a Server that exposes any
// Client over the real gRPC wire.
package enginetest

import (
	"context"
	"sync"

	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/identifier"
)

// Fake is an in-memory engine.Client. Every invocation is recorded by method
// name so tests can assert not just on results but on which engine calls
// happened, including that none did. Behavior is stubbed per method with a
// function field; a nil field returns zero values.
type Fake struct {
	mu    sync.Mutex
	calls []string

	ListStacksFn             func(c engine.Caller) ([]engine.Record, error)
	ShowStackFn              func(c engine.Caller, id *identifier.ID) ([]engine.Record, error)
	IdentifyStackFn          func(c engine.Caller, name string) (identifier.ID, error)
	CreateStackFn            func(c engine.Caller, name string, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error)
	UpdateStackFn            func(c engine.Caller, id identifier.ID, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error)
	GetTemplateFn            func(c engine.Caller, id identifier.ID) (engine.Record, error)
	ValidateTemplateFn       func(c engine.Caller, tmpl map[string]any) (engine.Record, error)
	DeleteStackFn            func(c engine.Caller, id identifier.ID) (engine.Record, error)
	ListEventsFn             func(c engine.Caller, id *identifier.ID) ([]engine.Record, error)
	DescribeStackResourceFn  func(c engine.Caller, id identifier.ID, resourceName string) (engine.Record, error)
	DescribeStackResourcesFn func(c engine.Caller, id identifier.ID, resourceName string) ([]engine.Record, error)
	FindPhysicalResourceFn   func(c engine.Caller, physicalID string) (identifier.ID, error)
	ListStackResourcesFn     func(c engine.Caller, id identifier.ID) ([]engine.Record, error)
}

var _ engine.Client = (*Fake)(nil)

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
}

// Calls returns the method names invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount reports how many times the named method was invoked.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == method {
			n++
		}
	}
	return n
}

func (f *Fake) ListStacks(ctx context.Context, c engine.Caller) ([]engine.Record, error) {
	f.record("list_stacks")
	if f.ListStacksFn != nil {
		return f.ListStacksFn(c)
	}
	return nil, nil
}

func (f *Fake) ShowStack(ctx context.Context, c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
	f.record("show_stack")
	if f.ShowStackFn != nil {
		return f.ShowStackFn(c, id)
	}
	return nil, nil
}

func (f *Fake) IdentifyStack(ctx context.Context, c engine.Caller, name string) (identifier.ID, error) {
	f.record("identify_stack")
	if f.IdentifyStackFn != nil {
		return f.IdentifyStackFn(c, name)
	}
	return identifier.ID{}, nil
}

func (f *Fake) CreateStack(ctx context.Context, c engine.Caller, name string, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
	f.record("create_stack")
	if f.CreateStackFn != nil {
		return f.CreateStackFn(c, name, tmpl, params, files, args)
	}
	return nil, nil
}

func (f *Fake) UpdateStack(ctx context.Context, c engine.Caller, id identifier.ID, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
	f.record("update_stack")
	if f.UpdateStackFn != nil {
		return f.UpdateStackFn(c, id, tmpl, params, files, args)
	}
	return nil, nil
}

func (f *Fake) GetTemplate(ctx context.Context, c engine.Caller, id identifier.ID) (engine.Record, error) {
	f.record("get_template")
	if f.GetTemplateFn != nil {
		return f.GetTemplateFn(c, id)
	}
	return nil, nil
}

func (f *Fake) ValidateTemplate(ctx context.Context, c engine.Caller, tmpl map[string]any) (engine.Record, error) {
	f.record("validate_template")
	if f.ValidateTemplateFn != nil {
		return f.ValidateTemplateFn(c, tmpl)
	}
	return nil, nil
}

func (f *Fake) DeleteStack(ctx context.Context, c engine.Caller, id identifier.ID) (engine.Record, error) {
	f.record("delete_stack")
	if f.DeleteStackFn != nil {
		return f.DeleteStackFn(c, id)
	}
	return nil, nil
}

func (f *Fake) ListEvents(ctx context.Context, c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
	f.record("list_events")
	if f.ListEventsFn != nil {
		return f.ListEventsFn(c, id)
	}
	return nil, nil
}

func (f *Fake) DescribeStackResource(ctx context.Context, c engine.Caller, id identifier.ID, resourceName string) (engine.Record, error) {
	f.record("describe_stack_resource")
	if f.DescribeStackResourceFn != nil {
		return f.DescribeStackResourceFn(c, id, resourceName)
	}
	return nil, nil
}

func (f *Fake) DescribeStackResources(ctx context.Context, c engine.Caller, id identifier.ID, resourceName string) ([]engine.Record, error) {
	f.record("describe_stack_resources")
	if f.DescribeStackResourcesFn != nil {
		return f.DescribeStackResourcesFn(c, id, resourceName)
	}
	return nil, nil
}

func (f *Fake) FindPhysicalResource(ctx context.Context, c engine.Caller, physicalID string) (identifier.ID, error) {
	f.record("find_physical_resource")
	if f.FindPhysicalResourceFn != nil {
		return f.FindPhysicalResourceFn(c, physicalID)
	}
	return identifier.ID{}, nil
}

func (f *Fake) ListStackResources(ctx context.Context, c engine.Caller, id identifier.ID) ([]engine.Record, error) {
	f.record("list_stack_resources")
	if f.ListStackResourcesFn != nil {
		return f.ListStackResourcesFn(c, id)
	}
	return nil, nil
}
