package toolruntime

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestNewSearchPaths_PreservesInheritedPath(t *testing.T) {
	sp := NewSearchPaths(nil)
	path := sp.Path()
	inherited := os.Getenv("PATH")
	for _, dir := range filepath.SplitList(inherited) {
		if dir == "" {
			continue
		}
		if !strings.Contains(path, dir) {
			t.Fatalf("expected inherited PATH entry %q to be preserved in %q", dir, path)
		}
	}
}

func TestSearchPaths_ResolveNonexistentExecutable(t *testing.T) {
	sp := NewSearchPaths([]string{t.TempDir()})
	if _, err := sp.Resolve("definitely-not-a-real-executable-name"); err == nil {
		t.Fatal("expected resolving a nonexistent executable to fail")
	}
}

func TestSearchPaths_ResolveCommonExecutable(t *testing.T) {
	name := "ls"
	if runtime.GOOS == "windows" {
		name = "cmd.exe"
	}
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available on this host", name)
	}
	sp := NewSearchPaths(nil)
	resolved, err := sp.Resolve(name)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", name, err)
	}
	if resolved == "" {
		t.Fatal("expected a non-empty resolved path")
	}
}

func TestSearchPaths_ConfiguredDirTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	toolName := "mytool"
	if runtime.GOOS == "windows" {
		toolName = "mytool.exe"
	}
	toolPath := filepath.Join(dir, toolName)
	if err := os.WriteFile(toolPath, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}

	sp := NewSearchPaths([]string{dir})
	resolved, err := sp.Resolve(toolName)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != toolPath {
		t.Fatalf("expected %q, got %q", toolPath, resolved)
	}
}

func TestDetectNodeDir_SkipsSilentlyWhenNodeAbsent(t *testing.T) {
	if _, err := exec.LookPath("node"); err != nil {
		if dir := detectNodeDir(); dir != "" {
			t.Fatalf("expected no node dir detected, got %q", dir)
		}
		return
	}
	if dir := detectNodeDir(); dir == "" {
		t.Fatal("expected a node dir to be detected since node is on PATH")
	}
}

func TestWithNpm_AddsCandidatesWithoutPanicking(t *testing.T) {
	sp := NewSearchPaths(nil).WithNpm()
	if sp == nil {
		t.Fatal("expected WithNpm to return a non-nil SearchPaths")
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	if got := expandTilde("~/.local/bin"); got != filepath.Join(home, ".local", "bin") {
		t.Fatalf("expandTilde(~/.local/bin) = %q", got)
	}
	if got := expandTilde("/abs/path"); got != "/abs/path" {
		t.Fatalf("expandTilde should leave absolute paths unchanged, got %q", got)
	}
}
