package enginetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/identifier"
)

// Server exposes an engine.Client backend over the real gRPC link, speaking
// the same generic Call service the production engine does. Tests dial it
// with engine.Dial to exercise the full wire path.
type Server struct {
	backend engine.Client
	grpc    *grpc.Server
	lis     net.Listener
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "stackgate.engine.v1.Engine",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "engine",
}

func NewServer(backend engine.Client) *Server {
	s := &Server{backend: backend, grpc: grpc.NewServer()}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on an ephemeral loopback port and serves until Stop.
func (s *Server) Start() (addr string, err error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	s.lis = lis
	go s.grpc.Serve(lis)
	return lis.Addr().String(), nil
}

func (s *Server) Stop() {
	s.grpc.Stop()
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := &engine.RPCRequest{}
	if err := dec(req); err != nil {
		return nil, err
	}
	server := srv.(*Server)
	if interceptor == nil {
		return server.dispatch(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stackgate.engine.v1.Engine/Call"}
	handler := func(ctx context.Context, req any) (any, error) {
		return server.dispatch(ctx, req.(*engine.RPCRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func (s *Server) dispatch(ctx context.Context, req *engine.RPCRequest) (*engine.RPCResponse, error) {
	var p engine.CallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return errResponse("InvalidParams", err.Error()), nil
		}
	}
	result, err := s.invoke(ctx, req.Method, p)
	if err != nil {
		var rpcErr *engine.RPCError
		if errors.As(err, &rpcErr) {
			return &engine.RPCResponse{Error: rpcErr}, nil
		}
		return errResponse("InternalError", err.Error()), nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &engine.RPCResponse{Result: payload}, nil
}

func (s *Server) invoke(ctx context.Context, method string, p engine.CallParams) (any, error) {
	switch method {
	case "list_stacks":
		return s.backend.ListStacks(ctx, p.Caller)
	case "show_stack":
		id, err := optionalIdentity(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.ShowStack(ctx, p.Caller, id)
	case "identify_stack":
		id, err := s.backend.IdentifyStack(ctx, p.Caller, p.StackName)
		if err != nil {
			return nil, err
		}
		return id.Record(), nil
	case "create_stack":
		return s.backend.CreateStack(ctx, p.Caller, p.StackName, p.Template, p.Parameters, p.Files, p.Args)
	case "update_stack":
		id, err := identifier.FromRecord(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.UpdateStack(ctx, p.Caller, id, p.Template, p.Parameters, p.Files, p.Args)
	case "get_template":
		id, err := identifier.FromRecord(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.GetTemplate(ctx, p.Caller, id)
	case "validate_template":
		return s.backend.ValidateTemplate(ctx, p.Caller, p.Template)
	case "delete_stack":
		id, err := identifier.FromRecord(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.DeleteStack(ctx, p.Caller, id)
	case "list_events":
		id, err := optionalIdentity(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.ListEvents(ctx, p.Caller, id)
	case "describe_stack_resource":
		id, err := identifier.FromRecord(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.DescribeStackResource(ctx, p.Caller, id, p.ResourceName)
	case "describe_stack_resources":
		id, err := identifier.FromRecord(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.DescribeStackResources(ctx, p.Caller, id, p.ResourceName)
	case "find_physical_resource":
		id, err := s.backend.FindPhysicalResource(ctx, p.Caller, p.PhysicalResourceID)
		if err != nil {
			return nil, err
		}
		return id.Record(), nil
	case "list_stack_resources":
		id, err := identifier.FromRecord(p.StackIdentity)
		if err != nil {
			return nil, err
		}
		return s.backend.ListStackResources(ctx, p.Caller, id)
	default:
		return nil, &engine.RPCError{Code: "UnknownMethod", Message: "no such engine method " + method}
	}
}

func optionalIdentity(rec map[string]any) (*identifier.ID, error) {
	if rec == nil {
		return nil, nil
	}
	id, err := identifier.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func errResponse(code, message string) *engine.RPCResponse {
	return &engine.RPCResponse{Error: &engine.RPCError{Code: code, Message: message}}
}
