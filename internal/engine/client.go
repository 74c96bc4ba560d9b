// Package engine is the RPC client for the orchestration engine. The link is
// gRPC carrying JSON payloads: every call is a generic Call(method, params)
// against the engine service, and results come back as loosely typed records
// keyed by the engine's field names.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/stackgate/stackgate/internal/identifier"
)

const serviceMethod = "/stackgate.engine.v1.Engine/Call"

// Record is an engine result record. Field names follow the engine's own
// vocabulary (see keys.go), never the API's.
type Record = map[string]any

// Caller identifies the authenticated principal a request runs as. It rides
// along with every engine call so the engine can scope results and enforce
// ownership.
type Caller struct {
	Tenant    string `json:"tenant"`
	Principal string `json:"principal"`
}

// RPCRequest is the single message type on the engine link.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCResponse carries either a result payload or a structured error.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// CallParams is the parameter envelope for every engine method. Each method
// fills the fields it needs; absent fields are omitted from the wire.
type CallParams struct {
	Caller             Caller            `json:"caller"`
	StackName          string            `json:"stack_name,omitempty"`
	StackIdentity      map[string]any    `json:"stack_identity,omitempty"`
	ResourceName       string            `json:"resource_name,omitempty"`
	PhysicalResourceID string            `json:"physical_resource_id,omitempty"`
	Template           map[string]any    `json:"template,omitempty"`
	Parameters         map[string]string `json:"params,omitempty"`
	Files              map[string]string `json:"files,omitempty"`
	Args               map[string]string `json:"args,omitempty"`
}

// Client invokes named operations on the engine. The gateway depends on this
// interface so tests can substitute an in-process fake.
type Client interface {
	ListStacks(ctx context.Context, c Caller) ([]Record, error)
	ShowStack(ctx context.Context, c Caller, id *identifier.ID) ([]Record, error)
	IdentifyStack(ctx context.Context, c Caller, name string) (identifier.ID, error)
	CreateStack(ctx context.Context, c Caller, name string, tmpl map[string]any, params, files, args map[string]string) (Record, error)
	UpdateStack(ctx context.Context, c Caller, id identifier.ID, tmpl map[string]any, params, files, args map[string]string) (Record, error)
	GetTemplate(ctx context.Context, c Caller, id identifier.ID) (Record, error)
	ValidateTemplate(ctx context.Context, c Caller, tmpl map[string]any) (Record, error)
	DeleteStack(ctx context.Context, c Caller, id identifier.ID) (Record, error)
	ListEvents(ctx context.Context, c Caller, id *identifier.ID) ([]Record, error)
	DescribeStackResource(ctx context.Context, c Caller, id identifier.ID, resourceName string) (Record, error)
	DescribeStackResources(ctx context.Context, c Caller, id identifier.ID, resourceName string) ([]Record, error)
	FindPhysicalResource(ctx context.Context, c Caller, physicalID string) (identifier.ID, error)
	ListStackResources(ctx context.Context, c Caller, id identifier.ID) ([]Record, error)
}

// CallObserver receives one notification per engine RPC; the metrics
// collector implements it.
type CallObserver interface {
	ObserveEngineCall(method, outcome string, elapsed time.Duration)
}

// Options configure the engine connection.
type Options struct {
	// Addr is the engine endpoint, host:port.
	Addr string
	// CACert is a path to the PEM bundle that signed the engine's serving
	// certificate. Empty means a plaintext connection.
	CACert string
	// CallTimeout bounds each RPC when the caller's context carries no
	// deadline of its own.
	CallTimeout time.Duration
	// Observer, when set, is notified after every RPC.
	Observer CallObserver
	Logger   zerolog.Logger
}

// GRPCClient is the production Client implementation.
type GRPCClient struct {
	conn     *grpc.ClientConn
	timeout  time.Duration
	observer CallObserver
	log      zerolog.Logger
}

// Dial connects to the engine. The connection is lazy; failures surface on
// the first call.
func Dial(opts Options) (*GRPCClient, error) {
	creds := insecure.NewCredentials()
	if opts.CACert != "" {
		tc, err := credentials.NewClientTLSFromFile(opts.CACert, "")
		if err != nil {
			return nil, fmt.Errorf("loading engine CA cert: %w", err)
		}
		creds = tc
	}
	conn, err := grpc.NewClient(opts.Addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing engine at %s: %w", opts.Addr, err)
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GRPCClient{conn: conn, timeout: timeout, observer: opts.Observer, log: opts.Logger}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// call runs one engine method. A non-nil out receives the decoded result;
// engine-side failures come back as *RPCError.
func (c *GRPCClient) call(ctx context.Context, method string, params CallParams, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}
	started := time.Now()
	req := &RPCRequest{Method: method, Params: payload}
	resp := &RPCResponse{}
	if err := c.conn.Invoke(ctx, serviceMethod, req, resp); err != nil {
		c.observe(method, "transport_error", started)
		c.log.Error().Err(err).Str("method", method).Msg("engine call failed")
		return fmt.Errorf("engine call %s: %w", method, err)
	}
	c.log.Debug().Str("method", method).Dur("elapsed", time.Since(started)).Msg("engine call")
	if resp.Error != nil {
		c.observe(method, "engine_error", started)
		return resp.Error
	}
	c.observe(method, "ok", started)
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (c *GRPCClient) observe(method, outcome string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveEngineCall(method, outcome, time.Since(started))
	}
}

func (c *GRPCClient) ListStacks(ctx context.Context, caller Caller) ([]Record, error) {
	var out []Record
	if err := c.call(ctx, "list_stacks", CallParams{Caller: caller}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ShowStack returns detail records for one stack, or for every stack the
// caller owns when id is nil.
func (c *GRPCClient) ShowStack(ctx context.Context, caller Caller, id *identifier.ID) ([]Record, error) {
	params := CallParams{Caller: caller}
	if id != nil {
		params.StackIdentity = id.Record()
	}
	var out []Record
	if err := c.call(ctx, "show_stack", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) IdentifyStack(ctx context.Context, caller Caller, name string) (identifier.ID, error) {
	var rec map[string]any
	if err := c.call(ctx, "identify_stack", CallParams{Caller: caller, StackName: name}, &rec); err != nil {
		return identifier.ID{}, err
	}
	return identifier.FromRecord(rec)
}

func (c *GRPCClient) CreateStack(ctx context.Context, caller Caller, name string, tmpl map[string]any, params, files, args map[string]string) (Record, error) {
	p := CallParams{
		Caller:     caller,
		StackName:  name,
		Template:   tmpl,
		Parameters: params,
		Files:      files,
		Args:       args,
	}
	var out Record
	if err := c.call(ctx, "create_stack", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) UpdateStack(ctx context.Context, caller Caller, id identifier.ID, tmpl map[string]any, params, files, args map[string]string) (Record, error) {
	p := CallParams{
		Caller:        caller,
		StackIdentity: id.Record(),
		Template:      tmpl,
		Parameters:    params,
		Files:         files,
		Args:          args,
	}
	var out Record
	if err := c.call(ctx, "update_stack", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTemplate returns the stack's template document, or nil when the engine
// has no template for the identity.
func (c *GRPCClient) GetTemplate(ctx context.Context, caller Caller, id identifier.ID) (Record, error) {
	var out Record
	if err := c.call(ctx, "get_template", CallParams{Caller: caller, StackIdentity: id.Record()}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) ValidateTemplate(ctx context.Context, caller Caller, tmpl map[string]any) (Record, error) {
	var out Record
	if err := c.call(ctx, "validate_template", CallParams{Caller: caller, Template: tmpl}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteStack returns nil on acceptance. A record with an "Error" field is a
// soft failure the engine chose to report in-band.
func (c *GRPCClient) DeleteStack(ctx context.Context, caller Caller, id identifier.ID) (Record, error) {
	var out Record
	if err := c.call(ctx, "delete_stack", CallParams{Caller: caller, StackIdentity: id.Record()}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns event records for one stack, or across all the caller's
// stacks when id is nil.
func (c *GRPCClient) ListEvents(ctx context.Context, caller Caller, id *identifier.ID) ([]Record, error) {
	params := CallParams{Caller: caller}
	if id != nil {
		params.StackIdentity = id.Record()
	}
	var out []Record
	if err := c.call(ctx, "list_events", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) DescribeStackResource(ctx context.Context, caller Caller, id identifier.ID, resourceName string) (Record, error) {
	p := CallParams{Caller: caller, StackIdentity: id.Record(), ResourceName: resourceName}
	var out Record
	if err := c.call(ctx, "describe_stack_resource", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DescribeStackResources returns detail records for the stack's resources,
// filtered to one resource when resourceName is non-empty.
func (c *GRPCClient) DescribeStackResources(ctx context.Context, caller Caller, id identifier.ID, resourceName string) ([]Record, error) {
	p := CallParams{Caller: caller, StackIdentity: id.Record(), ResourceName: resourceName}
	var out []Record
	if err := c.call(ctx, "describe_stack_resources", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindPhysicalResource resolves a physical resource id to the identity of the
// stack containing it.
func (c *GRPCClient) FindPhysicalResource(ctx context.Context, caller Caller, physicalID string) (identifier.ID, error) {
	var rec map[string]any
	if err := c.call(ctx, "find_physical_resource", CallParams{Caller: caller, PhysicalResourceID: physicalID}, &rec); err != nil {
		return identifier.ID{}, err
	}
	return identifier.FromRecord(rec)
}

func (c *GRPCClient) ListStackResources(ctx context.Context, caller Caller, id identifier.ID) ([]Record, error) {
	var out []Record
	if err := c.call(ctx, "list_stack_resources", CallParams{Caller: caller, StackIdentity: id.Record()}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
