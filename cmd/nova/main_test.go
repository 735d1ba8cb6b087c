package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcusD9722/Nova/assistant"
)

// runNova executes the CLI against a config rooted in dir.
func runNova(t *testing.T, dir, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--config", filepath.Join(dir, "nova.yaml")}, args...))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("nova %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func newCLITestDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
	t.Setenv("HOME", dir)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("NOVA_LLM_API_KEY", "")
	t.Setenv("NOVA_ALLOW_SHELL", "")
	t.Setenv("NOVA_ALLOW_NETWORK_TOOLS", "")

	cfg := "log:\n  level: error\nmemory:\n  dir: " + filepath.Join(dir, "data") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "nova.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestMemoryCommands(t *testing.T) {
	dir := newCLITestDir(t)

	out := runNova(t, dir, "", "memory", "add-fact", "user", "name", "Marcus", "--confidence", "0.9")
	if !strings.Contains(out, `"value": "Marcus"`) {
		t.Fatalf("add-fact output:\n%s", out)
	}

	out = runNova(t, dir, "", "memory", "facts", "user", "name")
	if !strings.Contains(out, `"value": "Marcus"`) {
		t.Errorf("facts output:\n%s", out)
	}

	out = runNova(t, dir, "", "memory", "search", "user")
	if !strings.Contains(out, "FACT user name = Marcus") {
		t.Errorf("search output:\n%s", out)
	}

	out = runNova(t, dir, "", "memory", "purge", "user", "--attribute", "name")
	if !strings.Contains(out, `"dry_run": true`) || !strings.Contains(out, `"matched": 1`) {
		t.Errorf("purge output:\n%s", out)
	}

	out = runNova(t, dir, "", "memory", "rebuild")
	if !strings.Contains(out, `"facts": 1`) {
		t.Errorf("rebuild output:\n%s", out)
	}
}

func TestToolRunUnknown(t *testing.T) {
	dir := newCLITestDir(t)

	out := runNova(t, dir, "", "tool", "run", "bogus.tool", `{}`)
	if !strings.Contains(out, "unknown tool: bogus.tool") {
		t.Errorf("output:\n%s", out)
	}

	out = runNova(t, dir, "", "tool", "list")
	if !strings.Contains(out, "- memory.search:") {
		t.Errorf("tool list:\n%s", out)
	}
}

func TestChatWithoutModel(t *testing.T) {
	dir := newCLITestDir(t)

	out := runNova(t, dir, "my name is Marcus\nexit\n", "chat")
	if !strings.Contains(out, assistant.NoModelText) {
		t.Errorf("chat output:\n%s", out)
	}

	out = runNova(t, dir, "", "memory", "facts", "user", "name")
	if !strings.Contains(out, `"value": "Marcus"`) {
		t.Errorf("name not extracted:\n%s", out)
	}
}

func TestToolGates(t *testing.T) {
	dir := newCLITestDir(t)
	cfg := "log:\n  level: error\nmemory:\n  dir: " + filepath.Join(dir, "data") + "\ntools:\n  allow_network: false\n  allow_shell: true\n"
	if err := os.WriteFile(filepath.Join(dir, "nova.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runNova(t, dir, "", "tool", "list")
	for _, want := range []string{"- code.read:", "- code.write:", "- project.scaffold:", "- shell.exec:"} {
		if !strings.Contains(out, want) {
			t.Errorf("tool list missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "weather.current") || strings.Contains(out, "discord.send") {
		t.Errorf("network tools listed while disabled:\n%s", out)
	}

	out = runNova(t, dir, "", "tool", "run", "code.write", `{"path":"notes.txt","content":"hi"}`)
	if !strings.Contains(out, `"ok": true`) {
		t.Fatalf("code.write output:\n%s", out)
	}
	b, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil || string(b) != "hi" {
		t.Errorf("notes.txt = %q, %v", b, err)
	}
}
