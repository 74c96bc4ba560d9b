package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const denyDeletes = `package cfn

deny contains msg if {
	input.action == "DeleteStack"
	msg := "stack deletion is restricted"
}

deny contains msg if {
	input.principal == "intern"
	msg := "intern may not call the API"
}
`

func TestAllowAllWithoutPolicy(t *testing.T) {
	e, err := Load(context.Background(), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	in := Input{Tenant: "t1", Principal: "alice", Action: "DeleteStack"}
	if err := e.Enforce(context.Background(), in); err != nil {
		t.Errorf("expected allow-all, got %v", err)
	}
}

func TestAllowAllWithMissingDir(t *testing.T) {
	e, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := e.Enforce(context.Background(), Input{Action: "CreateStack"}); err != nil {
		t.Errorf("expected allow-all, got %v", err)
	}
}

func TestDenyByAction(t *testing.T) {
	e, err := FromModules(context.Background(), map[string]string{"cfn.rego": denyDeletes}, zerolog.Nop())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	err = e.Enforce(context.Background(), Input{Tenant: "t1", Principal: "alice", Action: "DeleteStack"})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("got %v, want ErrDenied", err)
	}

	if err := e.Enforce(context.Background(), Input{Tenant: "t1", Principal: "alice", Action: "ListStacks"}); err != nil {
		t.Errorf("ListStacks should be allowed, got %v", err)
	}
}

func TestDenyByPrincipal(t *testing.T) {
	e, err := FromModules(context.Background(), map[string]string{"cfn.rego": denyDeletes}, zerolog.Nop())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	err = e.Enforce(context.Background(), Input{Tenant: "t1", Principal: "intern", Action: "ListStacks"})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("got %v, want ErrDenied", err)
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cfn.rego"), []byte(denyDeletes), 0o600); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}
	// Non-rego files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o600); err != nil {
		t.Fatalf("writing readme: %v", err)
	}

	e, err := Load(context.Background(), dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = e.Enforce(context.Background(), Input{Principal: "bob", Action: "DeleteStack"})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("got %v, want ErrDenied", err)
	}
}

func TestCompileError(t *testing.T) {
	_, err := FromModules(context.Background(), map[string]string{"bad.rego": "package cfn\n\ndeny {"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected a compile error")
	}
}
