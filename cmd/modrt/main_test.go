package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	modrt "github.com/albertocavalcante/go-modrt"
	"github.com/albertocavalcante/go-modrt/graph"
)

const bundleSet = `
bundles:
  - location: mem:api
    headers:
      Bundle-SymbolicName: api
      Bundle-Version: 1.0.0
      Export-Package: com.example.api;version=1.0
  - location: mem:impl
    headers:
      Bundle-SymbolicName: impl
      Import-Package: com.example.api
    start: true
`

const brokenSet = `
bundles:
  - location: mem:orphan
    headers:
      Bundle-SymbolicName: orphan
      Import-Package: com.example.missing
`

func writeSet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundles.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		set      string
		wantCode int
		want     []string
	}{
		{"wired", bundleSet, 0, []string{"api_1.0.0", "impl_0.0.0", "RESOLVED"}},
		{"missing import", brokenSet, 2, []string{"orphan", "com.example.missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, _ := run(t, "resolve", writeSet(t, tt.set))
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d\n%s", code, tt.wantCode, out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestGraphFormats(t *testing.T) {
	path := writeSet(t, bundleSet)

	code, out, errOut := run(t, "graph", path, "--format", "dot")
	if code != 0 {
		t.Fatalf("graph --format dot exit code = %d: %s", code, errOut)
	}
	if !strings.Contains(out, `"impl_0.0.0 [2]" -> "api_1.0.0 [1]" [label="com.example.api"];`) {
		t.Errorf("DOT output missing the import wire:\n%s", out)
	}

	code, out, _ = run(t, "graph", path, "-f", "json")
	if code != 0 {
		t.Fatalf("graph -f json exit code = %d", code)
	}
	var wiring graph.WiringJSON
	if err := json.Unmarshal([]byte(out), &wiring); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if len(wiring.Revisions) != 3 {
		t.Errorf("revisions = %d, want 3 with the system bundle", len(wiring.Revisions))
	}

	code, out, _ = run(t, "graph", path, "--explain", "com.example.api")
	if code != 0 || !strings.Contains(out, "Wired to: api_1.0.0 [1]") {
		t.Errorf("graph --explain exit code = %d:\n%s", code, out)
	}

	if code, _, errOut := run(t, "graph", path, "--format", "svg"); code == 0 || !strings.Contains(errOut, "unknown format") {
		t.Errorf("graph --format svg exit code = %d, stderr %q", code, errOut)
	}
}

func TestRunOnce(t *testing.T) {
	storage := t.TempDir()
	path := writeSet(t, bundleSet)

	code, out, errOut := run(t, "run", path, "--once", "--storage", storage)
	if code != 0 {
		t.Fatalf("run exit code = %d: %s", code, errOut)
	}
	for _, w := range []string{"ID", "ACTIVE", "impl_0.0.0"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
	entries, err := os.ReadDir(storage)
	if err != nil || len(entries) == 0 {
		t.Errorf("storage directory is empty after run: %v", err)
	}
}

func TestEnvironmentAndConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "modrt.yaml")
	if err := os.WriteFile(cfg, []byte("runtime: \"9.1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, _ := run(t, "version", "--config", cfg)
	if code != 0 || !strings.Contains(out, "runtime 9.1.0 (multi-release 9)") {
		t.Errorf("version with config file exit code = %d:\n%s", code, out)
	}

	t.Setenv("MODRT_RUNTIME", "17")
	code, out, _ = run(t, "version")
	if code != 0 || !strings.Contains(out, "multi-release 17") {
		t.Errorf("version with MODRT_RUNTIME exit code = %d:\n%s", code, out)
	}
	if !strings.Contains(out, "modrt "+modrt.Version) {
		t.Errorf("version output missing the framework version:\n%s", out)
	}
}

func TestMissingBundleSet(t *testing.T) {
	code, _, errOut := run(t, "resolve", filepath.Join(t.TempDir(), "nope.yaml"))
	if code != 1 || !strings.Contains(errOut, "failed to read bundle set") {
		t.Errorf("exit code = %d, stderr %q", code, errOut)
	}
}
