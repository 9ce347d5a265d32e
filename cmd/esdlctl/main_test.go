package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run", "--algorithm", "ga", "--seed", "4", "--generations", "3",
		"--set", "system.size=10", "--set", "landscape.size=6")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"seed=4", "generations=3", `reason="generation limit reached"`, "phenome=["} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommandWithDefinitionFile(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "def.esdl")
	src := "FROM suitable_individuals SELECT (size) population\nYIELD population\nBEGIN generation\n    FROM population SELECT (size) population USING tournament, mutate_random\n    YIELD population\nEND generation\n"
	if err := os.WriteFile(def, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := filepath.Join(dir, "run.toml")
	toml := "[system]\nsize = 6\n\n[landscape]\nclass = \"sphere\"\nsize = 3\n"
	if err := os.WriteFile(cfg, []byte(toml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := execute(t, "run", "--config", cfg, "--definition", def, "--seed", "2", "--generations", "2", "--workers", "2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "generations=2") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunCommandErrors(t *testing.T) {
	if _, err := execute(t, "run", "--algorithm", "nsga"); err == nil || !strings.Contains(err.Error(), "unknown algorithm") {
		t.Fatalf("expected unknown algorithm, got %v", err)
	}
	if _, err := execute(t, "run", "--definition", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected an error for a missing definition file")
	}
	if _, err := execute(t, "run", "extra"); err == nil {
		t.Fatal("expected run to reject positional arguments")
	}
	out, err := execute(t, "run", "--seed", "1", "--set", "system.definition=x = nothing")
	if err == nil || !strings.Contains(err.Error(), "x = nothing") || !strings.Contains(out, "generations=0") {
		t.Fatalf("expected the failing statement to be reported, got %v\n%s", err, out)
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.esdl")
	if err := os.WriteFile(good, []byte("FROM random_binary SELECT p, 5 q\nYIELD p\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := execute(t, "check", good)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "W2006") || !strings.Contains(out, "ok (1 warnings)") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	bad := filepath.Join(dir, "bad.esdl")
	if err := os.WriteFile(bad, []byte("END generation\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := execute(t, "check", bad); err == nil || !strings.Contains(err.Error(), "E0006") {
		t.Fatalf("expected E0006, got %v", err)
	}
	if _, err := execute(t, "check"); err == nil {
		t.Fatal("expected check to require a file")
	}
}

func TestListingCommands(t *testing.T) {
	cases := []struct {
		args []string
		want []string
	}{
		{[]string{"operators"}, []string{"mutate_de (filter)", "full_combine (joiner)"}},
		{[]string{"show"}, []string{"aco\nde\nga\npso"}},
		{[]string{"show", "DE"}, []string{"mutate_de(scale=F)", "system.cr = 0.8", "landscape.class = \"rosenbrock\""}},
		{[]string{"landscapes"}, []string{"onemax", "rosenbrock", "sphere"}},
	}
	for _, tc := range cases {
		out, err := execute(t, tc.args...)
		if err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		for _, want := range tc.want {
			if !strings.Contains(out, want) {
				t.Fatalf("%v: output missing %q:\n%s", tc.args, want, out)
			}
		}
	}
	if _, err := execute(t, "show", "nsga"); err == nil {
		t.Fatal("expected an unknown algorithm error")
	}
}

func TestKlogFlagsRegistered(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})
	for _, name := range []string{"v", "logtostderr", "vmodule"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("missing klog flag %q", name)
		}
	}
}
