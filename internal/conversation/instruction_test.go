package conversation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadInstruction_Default(t *testing.T) {
	got, err := LoadInstruction("")
	if err != nil {
		t.Fatalf("LoadInstruction: %v", err)
	}
	if got != DefaultInstruction {
		t.Error("empty path did not yield the default instruction")
	}
}

func TestLoadInstruction_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruction.yaml")
	content := "instruction: |\n  You qualify leads for Acme.\n  Start every reply with [status: ...].\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadInstruction(path)
	if err != nil {
		t.Fatalf("LoadInstruction: %v", err)
	}
	want := "You qualify leads for Acme.\nStart every reply with [status: ...]."
	if got != want {
		t.Errorf("instruction = %q, want %q", got, want)
	}
}

func TestLoadInstruction_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("instruction: \"\"\n"), 0o644)
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("instruction: [unclosed\n"), 0o644)

	for _, p := range []string{filepath.Join(dir, "missing.yaml"), empty, bad} {
		if _, err := LoadInstruction(p); err == nil {
			t.Errorf("LoadInstruction(%s) succeeded, want error", filepath.Base(p))
		}
	}
}
