package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/targetdist/internal/grid"
)

// isolateHome points HOME at a temp directory so no test touches the real
// ~/.targetdist.
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	home := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(home, 0700); err != nil {
		t.Fatalf("failed to create temp home: %v", err)
	}
	t.Setenv("HOME", home)
}

// writeConfig writes a config with a file store under dir.
func writeConfig(t *testing.T, dir, distribution, extraGrid string) string {
	t.Helper()
	content := fmt.Sprintf(`grid:
  axes:
    - {name: s1, min: -2, max: 2, bins: 20}
    - {name: s2, min: 0, max: 1, bins: 4, periodic: true}
%s
distribution:
%s
bias:
  beta: 1
store:
  kind: file
  path: %s
logging:
  level: error
  dir: %s
`, extraGrid, distribution, filepath.Join(dir, "grids"), filepath.Join(dir, "logs"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("expected version %s, got %s", version, got["version"])
	}
}

func TestTypesCmd(t *testing.T) {
	out, err := execute(t, "types", "--json")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	var infos []typeInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	names := make(map[string]bool)
	for _, info := range infos {
		names[info.Name] = true
	}
	for _, want := range []string{"UNIFORM", "GAUSSIAN", "LINEAR_COMBINATION", "MATHEVAL_DIST", "WELL_TEMPERED"} {
		if !names[want] {
			t.Errorf("types output missing %s", want)
		}
	}
}

func TestConfigValidateCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	good := writeConfig(t, tmpDir, "  type: WELL_TEMPERED\n  bias_factor: 8", "")
	out, err := execute(t, "config", "validate", "--config", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "valid: Type: WELL_TEMPERED") {
		t.Errorf("unexpected output %q", out)
	}

	bad := writeConfig(t, tmpDir, "  type: WELL_TEMPERED\n  bias_factor: 0.5", "")
	if _, err := execute(t, "config", "validate", "--config", bad); err == nil {
		t.Error("expected error for bias factor below 1")
	}
}

func TestUpdateMarginalRestart(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	// the periodic s2 axis cuts the gaussian off, so force unit mass
	cfg := writeConfig(t, tmpDir, "  type: GAUSSIAN\n  centers: [[0, 0.5]]\n  sigmas: [[0.5, 0.3]]\n  normalize: true", "")

	out, err := execute(t, "update", "--config", cfg, "--iterations", "2", "--json")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	var sum summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if sum.Iterations != 2 || sum.Cells != 21*4 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if math.Abs(sum.Integral-1) > 1e-9 {
		t.Errorf("expected unit integral, got %g", sum.Integral)
	}
	if len(sum.Warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", sum.Warnings)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "grids", "targetdist.dat")); err != nil {
		t.Errorf("expected saved grid file: %v", err)
	}

	out, err = execute(t, "marginal", "--config", cfg, "--root", tmpDir, "--args", "s1", "--out", "marginal_s1.dat")
	if err != nil {
		t.Fatalf("marginal: %v", err)
	}
	if !strings.Contains(out, "targetdist_marginal_s1") {
		t.Errorf("unexpected marginal output %q", out)
	}
	fh, err := os.Open(filepath.Join(tmpDir, "marginal_s1.dat"))
	if err != nil {
		t.Fatalf("expected marginal file: %v", err)
	}
	m, err := grid.Read(fh)
	fh.Close()
	if err != nil {
		t.Fatalf("reading marginal: %v", err)
	}
	if m.Dimension() != 1 || math.Abs(grid.Integrate(m)-1) > 1e-9 {
		t.Errorf("expected a normalized 1D marginal, got dimension %d integral %g", m.Dimension(), grid.Integrate(m))
	}

	if _, err := execute(t, "marginal", "--config", cfg, "--root", tmpDir, "--args", "s1", "--out", "../escape.dat"); err == nil {
		t.Error("expected marginal --out outside the project root to fail")
	}

	seed, err := grid.New("seed", []grid.Axis{
		{Name: "s1", Min: -2, Max: 2, Bins: 20},
		{Name: "s2", Min: 0, Max: 1, Bins: 4, Periodic: true},
	})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	seed.Shift(0.123)
	writeGrid(t, filepath.Join(tmpDir, "grids", "seed.dat"), seed)

	out, err = execute(t, "restart", "--config", cfg, "--from", "seed")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !strings.Contains(out, "Restarted from seed") {
		t.Errorf("unexpected restart output %q", out)
	}
	restarted := readGrid(t, filepath.Join(tmpDir, "grids", "targetdist.dat"))
	for i, v := range restarted.Values() {
		if v != 0.123 {
			t.Fatalf("cell %d: expected the restarted value 0.123, got %g", i, v)
		}
	}
	logGrid := readGrid(t, filepath.Join(tmpDir, "grids", "log_targetdist.dat"))
	for i, v := range logGrid.Values() {
		if v != 0 {
			t.Fatalf("cell %d: expected a flat log grid, got %g", i, v)
		}
	}

	if _, err := execute(t, "restart", "--config", cfg, "--from", "seed", "--iterations", "1"); err != nil {
		t.Fatalf("restart with update: %v", err)
	}
	updated := readGrid(t, filepath.Join(tmpDir, "grids", "targetdist.dat"))
	if updated.Value(0) == 0.123 {
		t.Error("expected an update after the restart to replace the restarted values")
	}

	if _, err := execute(t, "restart", "--config", cfg, "--from", "seed", "--iterations", "-1"); err == nil {
		t.Error("expected error for negative iterations")
	}
}

func writeGrid(t *testing.T, path string, g *grid.Field) {
	t.Helper()
	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer fh.Close()
	if err := grid.Write(fh, g); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readGrid(t *testing.T, path string) *grid.Field {
	t.Helper()
	fh, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer fh.Close()
	g, err := grid.Read(fh)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return g
}

func TestUpdate_FreeEnergyFile(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	fes, err := grid.New("fes", []grid.Axis{
		{Name: "s1", Min: -2, Max: 2, Bins: 20},
		{Name: "s2", Min: 0, Max: 1, Bins: 4, Periodic: true},
	})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	fes.Each(func(idx int, p []float64) { fes.SetValue(idx, p[0]*p[0]) })
	fesPath := filepath.Join(tmpDir, "fes.dat")
	fh, err := os.Create(fesPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := grid.Write(fh, fes); err != nil {
		t.Fatalf("write: %v", err)
	}
	fh.Close()

	withFES := writeConfig(t, tmpDir, "  type: WELL_TEMPERED\n  bias_factor: 4", "  free_energy: "+fesPath)
	if _, err := execute(t, "update", "--config", withFES); err != nil {
		t.Fatalf("update with free energy: %v", err)
	}

	without := writeConfig(t, tmpDir, "  type: WELL_TEMPERED\n  bias_factor: 4", "")
	if _, err := execute(t, "update", "--config", without); err == nil {
		t.Error("expected update without a free energy grid to fail")
	}
}

func TestUpdate_RejectsBadIterations(t *testing.T) {
	if _, err := execute(t, "update", "--iterations", "0"); err == nil {
		t.Error("expected error for zero iterations")
	}
}
