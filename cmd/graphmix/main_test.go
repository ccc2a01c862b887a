package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const halfFile = `
chemical "NaCl" {
  formula    = "NaCl"
  molar_mass = "58.44 g/mol"
}

chemical "Water" {
  formula    = "H2O"
  molar_mass = 18.01528
}

grid "plate" {
  wells = 96
}

solution "saline" {
  component "NaCl"  { amount = "${var.salt} mg/mL" }
  component "Water" { amount = "100 %" }
}

solution "water" {
  component "Water" { amount = "100 %" }
}

node {
  solution = "saline"
  grid     = "plate"
  volume   = "0 uL"
}

node {
  solution = "water"
  grid     = "plate"
  volume   = "0 uL"
}

mix "half" {
  grid   = "plate"
  volume = "100 uL"
  share "saline" { percent = "50 %" }
  share "water"  { percent = "50 %" }
}
`

// setup points the command at throwaway storage and returns the path of a
// protocol file.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	vars := map[string]string{
		"GRAPHMIX_STORAGE_DRIVER": "memory",
		"GRAPHMIX_BLOB_DRIVER":    "fs",
		"GRAPHMIX_BLOB_FS_ROOT":   filepath.Join(dir, "blobs"),
		"GRAPHMIX_LOG_LEVEL":      "error",
	}
	prev := getenv
	getenv = func(k string) string { return vars[k] }
	t.Cleanup(func() { getenv = prev })

	path := filepath.Join(dir, "half.hcl")
	if err := os.WriteFile(path, []byte(halfFile), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSolvePrintsTransfers(t *testing.T) {
	path := setup(t)
	code, out, errOut := runCLI(t, "-offline", "-var", "salt=1", "solve", path)
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{"saline", "half", "50 uL", "INITIAL", "plate:A1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestSolveArchiveThenLatest(t *testing.T) {
	path := setup(t)
	code, out, errOut := runCLI(t, "-offline", "-var", "salt=1", "-archive", "half", "solve", path)
	if code != exitOK {
		t.Fatalf("solve exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "archived half revision") {
		t.Fatalf("output = %s", out)
	}
	code, out, errOut = runCLI(t, "-offline", "latest", "half")
	if code != exitOK {
		t.Fatalf("latest exit %d: %s", code, errOut)
	}
	var doc struct {
		Solved bool `json:"solved"`
		Nodes  []struct {
			ID string `json:"id"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode latest: %v\n%s", err, out)
	}
	if !doc.Solved || len(doc.Nodes) != 3 {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestDocYAMLAndTikZ(t *testing.T) {
	path := setup(t)
	code, out, errOut := runCLI(t, "-offline", "-var", "salt=2", "-format", "yaml", "doc", path)
	if code != exitOK {
		t.Fatalf("doc exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "solved: true") {
		t.Fatalf("yaml doc = %s", out)
	}
	code, out, errOut = runCLI(t, "-offline", "-var", "salt=2", "tikz", path)
	if code != exitOK {
		t.Fatalf("tikz exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, `\begin{tikzpicture}`) {
		t.Fatalf("tikz = %s", out)
	}
}

func TestRunSimulates(t *testing.T) {
	path := setup(t)
	code, out, errOut := runCLI(t, "-offline", "-var", "salt=1", "-metrics", "run", path)
	if code != exitOK {
		t.Fatalf("run exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "2 transfers") || !strings.Contains(out, "pick_up_tip") {
		t.Fatalf("output = %s", out)
	}
	if !strings.Contains(errOut, "liquidhandling.run") {
		t.Fatalf("metrics missing from stderr: %s", errOut)
	}
}

func TestChemicalOffline(t *testing.T) {
	setup(t)
	code, _, errOut := runCLI(t, "-offline", "chemical", "NaCl")
	if code != exitError || !strings.Contains(errOut, "not found") {
		t.Fatalf("exit %d: %s", code, errOut)
	}
}

func TestUsageErrors(t *testing.T) {
	path := setup(t)
	cases := [][]string{
		{},
		{"solve"},
		{"-bogus", "solve", path},
		{"frobnicate", path},
		{"-format", "xml", "doc", path},
		{"-var", "novalue", "solve", path},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != exitUsage {
			t.Fatalf("%v: exit %d, want %d", args, code, exitUsage)
		}
	}
	if code, _, _ := runCLI(t, "-offline", "solve", filepath.Join(t.TempDir(), "missing.hcl")); code != exitError {
		t.Fatalf("missing file: exit %d", code)
	}
}
