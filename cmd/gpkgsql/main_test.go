package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_CreateAndExecute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.gpkg")

	code, out, errOut := runCLI(t, "--create", "--no-color", "--format", "csv",
		"-e", "CREATE TABLE roads (id INTEGER PRIMARY KEY, name TEXT, legacy TEXT); INSERT INTO roads (name) VALUES ('a1');",
		"-e", "ALTER TABLE roads DROP COLUMN legacy;",
		"-e", "SELECT * FROM roads;",
		path)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if !strings.Contains(out, "id,name\n1,a1\n") {
		t.Errorf("stdout:\n%s", out)
	}

	code, out, _ = runCLI(t, "-e", ".tables", path)
	if code != 0 || !strings.Contains(out, "roads") {
		t.Errorf("reopen: code %d, stdout:\n%s", code, out)
	}

	if code, _, errOut := runCLI(t, "-e", "SELECT * FROM nope", path); code != 1 || !strings.Contains(errOut, "nope") {
		t.Errorf("failing statement: code %d, stderr %q", code, errOut)
	}
}

func TestRun_ScriptAndShellInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.gpkg")
	script := filepath.Join(dir, "load.sql")
	if err := os.WriteFile(script, []byte("CREATE TABLE n (v INTEGER);\nINSERT INTO n VALUES (1), (2);\n"), 0644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	if code, _, errOut := runCLI(t, "--create", "-f", script, path); code != 0 {
		t.Fatalf("script run: code %d, stderr: %s", code, errOut)
	}

	// Piped input goes through the shell without line editing.
	var stdout, stderr bytes.Buffer
	in := strings.NewReader(".format csv\nSELECT sum(v) AS total\nFROM n;\n")
	if code := run([]string{"--no-color", path}, in, &stdout, &stderr); code != 0 {
		t.Fatalf("shell run: code %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "total\n3\n") {
		t.Errorf("stdout:\n%s", stdout.String())
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{filepath.Join(dir, "missing.gpkg")}},
		{"no file", nil},
		{"watch without script", []string{"--watch", filepath.Join(dir, "x.gpkg")}},
		{"bad format", []string{"--format", "xml", "--create", filepath.Join(dir, "y.gpkg")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, _, _ := runCLI(t, tc.args...); code != 1 {
				t.Errorf("exit code %d, want 1", code)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != 0 || !strings.HasPrefix(out, "gpkgsql version ") {
		t.Errorf("version: code %d, stdout %q", code, out)
	}
}
