package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testCatalogYAML = `
categories:
  - name: Lumber
    key: materials
    phase: material
  - name: Works
    key: works
    phase: non_material
materials:
  - id: 1
    name: Board
    category: Lumber
    unit: pcs
    price: 450
  - id: 2
    name: Beam
    category: Lumber
    unit: m
    variable: true
    parameters:
      - key: length_mm
        min: 100
        max: 6000
    calculation:
      type: volume
      volume_formula: length_mm * 150 * 150
      cost_per_m3: "20000"
templates: []
works:
  - id: 3
    name: Assembly
    category: Works
    unit: job
    price: 1500
other: []
`

func writeTestCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "materials.yaml")
	if err := os.WriteFile(path, []byte(testCatalogYAML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestCatalogValidateCmd(t *testing.T) {
	path := writeTestCatalog(t)
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"catalog", "validate", "-f", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("catalog validate failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "OK") {
		t.Errorf("expected OK in output, got: %s", out)
	}
	if !strings.Contains(out, "materials") || !strings.Contains(out, "2") {
		t.Errorf("expected materials count 2, got: %s", out)
	}
}

func TestCatalogValidateCmd_MissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"catalog", "validate", "-f", "/nonexistent/materials.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("catalog validate should fail on a missing file")
	}
}

func TestCatalogListCmd(t *testing.T) {
	path := writeTestCatalog(t)
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"catalog", "list", "-f", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("catalog list failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Board", "Beam", "Assembly", "computed", "450", "1 500"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestCatalogListCmd_SectionFilter(t *testing.T) {
	path := writeTestCatalog(t)
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"catalog", "list", "-f", path, "-s", "works"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("catalog list failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Assembly") {
		t.Errorf("expected Assembly in works listing, got: %s", out)
	}
	if strings.Contains(out, "Board") {
		t.Errorf("materials leaked into works listing: %s", out)
	}
}

func TestCatalogListCmd_EmptySection(t *testing.T) {
	path := writeTestCatalog(t)
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"catalog", "list", "-f", path, "-s", "templates"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("catalog list should fail on an empty section")
	}
}
