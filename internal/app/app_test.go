package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rulegrid/internal/scheduler"
	"github.com/vk/rulegrid/internal/testutil"
)

const rulesHCL = `
type "target" {
  schema = object({ name = string, deps = list(object({ name = string })) })
}

type "dep" {
  schema = object({ name = string })
}

type "sources" {
  schema = string
}

type "classes" {
  schema = string
}

rule "sources" {
  product    = "sources"
  expression = "src:${subject.name}"
}

rule "compile" {
  product    = "classes"
  input { product = "sources" }
  expression = { lib = "cls:${inputs[0]}" }[subject.name]
}
`

const buildHCL = `
subject "lib" {
  type  = "target"
  value = { name = "lib", deps = [] }
}

subject "broken" {
  type  = "target"
  value = { name = "broken", deps = [] }
}

root {
  subject = "lib"
  product = "classes"
}

root {
  subject = "broken"
  product = "classes"
}

root {
  subject = "lib"
  product = "sources"
}
`

// setupApp writes files to a temp dir and builds an App from its build and
// rules subdirectories, with the report and the debug log captured
// separately.
func setupApp(t *testing.T, files map[string]string) (*App, *bytes.Buffer, *testutil.SafeBuffer, string) {
	t.Helper()
	dir := testutil.WriteFiles(t, files)
	cfg := Config{
		BuildPath: filepath.Join(dir, "build"),
		RulesPath: filepath.Join(dir, "rules"),
		Workers:   2,
		LogLevel:  "debug",
		LogFormat: "text",
	}
	validated, err := NewConfig(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	a, err := NewApp(out, logs, validated)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("RULEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, out, logs, dir
}

func TestRun_ReportsEveryRoot(t *testing.T) {
	a, out, logs, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": rulesHCL,
		"build/build.hcl": buildHCL,
	})

	err := a.Run(context.Background())
	require.ErrorIs(t, err, ErrRootsFailed)
	assert.Contains(t, err.Error(), "1 of 3")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "lib classes ok cls:src:lib", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "broken classes failed rule compile failed for"), lines[1])
	assert.Equal(t, "lib sources ok src:lib", lines[2])

	assert.Contains(t, logs.String(), `msg="Execution finished."`)
	assert.Equal(t, int64(1), a.Scheduler().Handle().Refs())
}

func TestRun_AllRootsSucceed(t *testing.T) {
	a, out, _, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": rulesHCL,
		"build/build.hcl": `
subject "app" {
  type  = "target"
  value = { name = "app", deps = [] }
}

root {
  subject = "app"
  product = "target"
}
`,
	})

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, `app target ok {"deps":[],"name":"app"}`+"\n", out.String())
}

func TestRun_FanOutRoot(t *testing.T) {
	a, out, _, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": rulesHCL,
		"build/build.hcl": `
subject "app" {
  type  = "target"
  value = { name = "app", deps = [{ name = "a" }, { name = "b" }] }
}

root {
  subject     = "app"
  product     = "sources"
  dep_product = "target"
  field       = "deps"
  field_types = ["dep"]
}
`,
	})

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, `app sources ok ["src:a","src:b"]`+"\n", out.String())
}

const recursiveRulesHCL = `
type "target" {
  schema = object({ name = string, deps = optional(list(object({ name = string }))) })
}

type "sources" {
  schema = string
}

type "classes" {
  schema = string
}

rule "sources" {
  product    = "sources"
  expression = "src:${subject.name}"
}

rule "compile" {
  product = "classes"
  input { product = "sources" }
  input {
    product     = "classes"
    dep_product = "target"
    field       = "deps"
    field_types = ["target"]
  }
  expression = "${subject.name}:${length(inputs[1])}[${join(",", inputs[1])}]"
}
`

func TestRun_RecursiveFanOut(t *testing.T) {
	a, out, _, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": recursiveRulesHCL,
		"build/build.hcl": `
subject "lib" {
  type  = "target"
  value = { name = "lib", deps = [] }
}

subject "app" {
  type  = "target"
  value = { name = "app", deps = [{ name = "lib" }, { name = "util" }] }
}

root {
  subject = "lib"
  product = "classes"
}

root {
  subject = "app"
  product = "classes"
}

root {
  subject     = "app"
  product     = "classes"
  dep_product = "target"
  field       = "deps"
  field_types = ["target"]
}
`,
	})

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, strings.Join([]string{
		"lib classes ok lib:0[]",
		"app classes ok app:2[lib:0[],util:0[]]",
		`app classes ok ["lib:0[]","util:0[]"]`,
	}, "\n")+"\n", out.String())
}

func TestRun_ReportsFailureChain(t *testing.T) {
	a, out, logs, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": `
type "target" {
  schema = object({ name = string, deps = optional(list(object({ name = string }))) })
}

type "classes" {
  schema = string
}

rule "compile" {
  product = "classes"
  input {
    product     = "classes"
    dep_product = "target"
    field       = "deps"
    field_types = ["target"]
  }
  expression = "${subject.name}:${join(",", inputs[0])}${ { app = "", lib = "" }[subject.name] }"
}
`,
		"build/build.hcl": `
subject "app" {
  type  = "target"
  value = { name = "app", deps = [{ name = "lib" }, { name = "util" }] }
}

root {
  subject = "app"
  product = "classes"
}
`,
	})

	err := a.Run(context.Background())
	require.ErrorIs(t, err, ErrRootsFailed)

	line := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(line, "app classes failed rule compile input 0 for target:"), line)
	assert.Contains(t, line, ": element 1 of target.deps: rule compile failed for target:")
	assert.Contains(t, line, `"name":"util"`)

	assert.Contains(t, logs.String(), `msg="Root failed."`)
	assert.Contains(t, logs.String(), "kind=throw")
}

func TestRun_CollectsRegistrationErrors(t *testing.T) {
	a, out, _, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": rulesHCL,
		"build/build.hcl": `
subject "lib" {
  type  = "target"
  value = { name = "lib", deps = [] }
}

root {
  subject = "lib"
  product = "jars"
}

root {
  subject = "lib"
  product = "classes"
}

root {
  subject = "lib"
  product = "docs"
}
`,
	})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrNoRootEdges)
	assert.Contains(t, err.Error(), "Exactly(jars)")
	assert.Contains(t, err.Error(), "Exactly(docs)")
	assert.Empty(t, a.Scheduler().Roots())
	assert.Empty(t, out.String())
}

func TestRun_WritesDiagnostics(t *testing.T) {
	a, _, _, dir := setupApp(t, map[string]string{
		"rules/rules.hcl": rulesHCL,
		"build/build.hcl": buildHCL,
	})
	a.config.VisualizePath = filepath.Join(dir, "graph.dot")
	a.config.TracePath = filepath.Join(dir, "trace.txt")

	require.ErrorIs(t, a.Run(context.Background()), ErrRootsFailed)

	dot, err := os.ReadFile(filepath.Join(dir, "graph.dot"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(dot), "digraph"), string(dot))

	trace, err := os.ReadFile(filepath.Join(dir, "trace.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(trace), "rule compile failed")
}

func TestRun_NoRoots(t *testing.T) {
	a, out, logs, _ := setupApp(t, map[string]string{
		"build/build.hcl": `type "t" { schema = string }`,
	})

	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, out.String())
	assert.Contains(t, logs.String(), "Rules path not found, skipping.")
	assert.Contains(t, logs.String(), "No roots declared")
}

func TestRun_PrintHandler(t *testing.T) {
	a, out, logs, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": `
type "greeting" {
  schema = object({ text = string })
}

type "shown" {
  schema = object({ text = string })
}

rule "show" {
  product = "shown"
  handler = "print"
}
`,
		"build/build.hcl": `
subject "hello" {
  type  = "greeting"
  value = { text = "hi" }
}

root {
  subject = "hello"
  product = "shown"
}
`,
	})

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, `hello shown ok {"text":"hi"}`+"\n", out.String())
	assert.Contains(t, logs.String(), `msg="Printing subject."`)
	assert.Contains(t, a.Handlers().Names(), "http_request")
}

func TestNewApp_LoadErrors(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"build.hcl": `rule "r" {`,
	})
	cfg, err := NewConfig(Config{BuildPath: dir})
	require.NoError(t, err)

	_, err = NewApp(io.Discard, io.Discard, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
	assert.Contains(t, err.Error(), "failed to parse HCL file")
}

func TestHealthcheckServer(t *testing.T) {
	a, _, logs, _ := setupApp(t, map[string]string{
		"rules/rules.hcl": rulesHCL,
		"build/build.hcl": buildHCL,
	})
	require.NoError(t, a.registerRoots())

	addr, err := a.startHealthcheckServer(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.closeHealthcheckServer(context.Background()) })

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK roots=3\n", string(body))
	assert.Contains(t, logs.String(), "Health check endpoint hit.")
}

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{BuildPath: "build", LogLevel: "warn", LogFormat: "json"}},
		{name: "missing build path", cfg: Config{}, wantErr: "BuildPath is a required"},
		{name: "negative workers", cfg: Config{BuildPath: "b", Workers: -1}, wantErr: "workers must not be negative"},
		{name: "bad level", cfg: Config{BuildPath: "b", LogLevel: "loud"}, wantErr: "invalid log level"},
		{name: "bad format", cfg: Config{BuildPath: "b", LogFormat: "xml"}, wantErr: "invalid log format"},
		{name: "bad port", cfg: Config{BuildPath: "b", HealthcheckPort: 70000}, wantErr: "port out of range"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cfg, *cfg)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger("warn", "json", &buf).Info("Hidden.")
	newLogger("warn", "json", &buf).Warn("Shown.")
	assert.NotContains(t, buf.String(), "Hidden.")
	assert.Contains(t, buf.String(), `"msg":"Shown."`)

	buf.Reset()
	newLogger("nonsense", "text", &buf).Info("Default level.")
	assert.Contains(t, buf.String(), `msg="Default level."`)
}
