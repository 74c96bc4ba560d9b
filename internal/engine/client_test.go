package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/engine/enginetest"
	"github.com/stackgate/stackgate/internal/identifier"
)

func dialFake(t *testing.T, fake *enginetest.Fake) *engine.GRPCClient {
	t.Helper()
	srv := enginetest.NewServer(fake)
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("starting engine server: %v", err)
	}
	t.Cleanup(srv.Stop)
	client, err := engine.Dial(engine.Options{
		Addr:        addr,
		CallTimeout: 5 * time.Second,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("dialing engine: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestShowStackRoundTrip(t *testing.T) {
	want := identifier.New("t1", "web", "a5b3", "")
	fake := &enginetest.Fake{
		ShowStackFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			if c.Tenant != "t1" || c.Principal != "alice" {
				return nil, errors.New("wrong caller")
			}
			if id == nil || *id != want {
				return nil, errors.New("wrong identity")
			}
			return []engine.Record{{
				engine.StackName:   "web",
				engine.StackStatus: "COMPLETE",
			}}, nil
		},
	}
	client := dialFake(t, fake)

	got, err := client.ShowStack(context.Background(), engine.Caller{Tenant: "t1", Principal: "alice"}, &want)
	if err != nil {
		t.Fatalf("show_stack: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0][engine.StackName] != "web" || got[0][engine.StackStatus] != "COMPLETE" {
		t.Errorf("unexpected record %v", got[0])
	}
	if n := fake.CallCount("show_stack"); n != 1 {
		t.Errorf("show_stack invoked %d times, want 1", n)
	}
}

func TestShowStackAllStacks(t *testing.T) {
	fake := &enginetest.Fake{
		ShowStackFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			if id != nil {
				return nil, errors.New("expected nil identity for the all-stacks form")
			}
			return []engine.Record{}, nil
		},
	}
	client := dialFake(t, fake)

	if _, err := client.ShowStack(context.Background(), engine.Caller{Tenant: "t1"}, nil); err != nil {
		t.Fatalf("show_stack: %v", err)
	}
}

func TestIdentifyStackRecordForm(t *testing.T) {
	want := identifier.New("t1", "web", "a5b3", "")
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			if name != "web" {
				return identifier.ID{}, errors.New("wrong name")
			}
			return want, nil
		},
	}
	client := dialFake(t, fake)

	got, err := client.IdentifyStack(context.Background(), engine.Caller{Tenant: "t1"}, "web")
	if err != nil {
		t.Fatalf("identify_stack: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestRemoteErrorSurvivesWire(t *testing.T) {
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			return identifier.ID{}, &engine.RPCError{Code: "StackNotFound", Message: "stack missing not found"}
		},
	}
	client := dialFake(t, fake)

	_, err := client.IdentifyStack(context.Background(), engine.Caller{Tenant: "t1"}, "missing")
	if err == nil {
		t.Fatal("expected an error")
	}
	var rpcErr *engine.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error %v is not an RPCError", err)
	}
	if rpcErr.Code != "StackNotFound" {
		t.Errorf("code = %q, want StackNotFound", rpcErr.Code)
	}
	if rpcErr.Message != "stack missing not found" {
		t.Errorf("message = %q", rpcErr.Message)
	}
}

func TestCreateStackPassesArguments(t *testing.T) {
	var gotArgs map[string]string
	var gotParams map[string]string
	fake := &enginetest.Fake{
		CreateStackFn: func(c engine.Caller, name string, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
			gotParams = params
			gotArgs = args
			if name != "web" {
				return nil, errors.New("wrong name")
			}
			if tmpl["Description"] != "demo" {
				return nil, errors.New("template did not survive the wire")
			}
			return identifier.New("t1", "web", "a5b3", "").Record(), nil
		},
	}
	client := dialFake(t, fake)

	tmpl := map[string]any{"Description": "demo"}
	params := map[string]string{"KeyName": "deploy"}
	args := map[string]string{engine.ParamTimeout: "30", engine.ParamDisableRollback: "true"}
	result, err := client.CreateStack(context.Background(), engine.Caller{Tenant: "t1"}, "web", tmpl, params, map[string]string{}, args)
	if err != nil {
		t.Fatalf("create_stack: %v", err)
	}
	if gotParams["KeyName"] != "deploy" {
		t.Errorf("params did not survive the wire: %v", gotParams)
	}
	if gotArgs[engine.ParamTimeout] != "30" || gotArgs[engine.ParamDisableRollback] != "true" {
		t.Errorf("args did not survive the wire: %v", gotArgs)
	}
	if _, err := identifier.FromRecord(result); err != nil {
		t.Errorf("result is not an identifier record: %v", err)
	}
}

func TestGetTemplateAbsent(t *testing.T) {
	fake := &enginetest.Fake{}
	client := dialFake(t, fake)

	got, err := client.GetTemplate(context.Background(), engine.Caller{Tenant: "t1"}, identifier.New("t1", "web", "a5b3", ""))
	if err != nil {
		t.Fatalf("get_template: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil for an absent template", got)
	}
}

func TestFindPhysicalResourceNotFound(t *testing.T) {
	fake := &enginetest.Fake{
		FindPhysicalResourceFn: func(c engine.Caller, physicalID string) (identifier.ID, error) {
			return identifier.ID{}, &engine.RPCError{Code: "PhysicalResourceNotFound", Message: "no resource with id " + physicalID}
		},
	}
	client := dialFake(t, fake)

	_, err := client.FindPhysicalResource(context.Background(), engine.Caller{Tenant: "t1"}, "i-000")
	var rpcErr *engine.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != "PhysicalResourceNotFound" {
		t.Fatalf("got %v, want PhysicalResourceNotFound", err)
	}
}
