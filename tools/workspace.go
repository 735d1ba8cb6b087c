package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	defaultShellTimeout = 45 * time.Second
	maxShellOutput      = 20000
	maxReadBytes        = 1 << 20
)

// destructiveCommands are refused by shell.exec when they appear anywhere
// in the lower-cased command.
var destructiveCommands = []string{
	"rm -rf /",
	"rm -rf /*",
	"del /s",
	"rmdir /s",
	"format ",
	"shutdown",
	"reboot",
	"reg delete",
	"diskpart",
}

var unsafeProjectChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// WorkspaceConfig confines the file tools. ProjectsDir defaults to
// Root/projects.
type WorkspaceConfig struct {
	Root        string
	ProjectsDir string
	AllowShell  bool
}

// Workspace builds the project, code and shell tools. Every path they touch
// must resolve inside Root or ProjectsDir; shell commands run in Root.
type Workspace struct {
	root        string
	projectsDir string
	allowShell  bool

	writeMu sync.Mutex
}

// NewWorkspace resolves the configured roots. Root defaults to the working
// directory.
func NewWorkspace(cfg WorkspaceConfig) (*Workspace, error) {
	rootPath := cfg.Root
	if strings.TrimSpace(rootPath) == "" {
		rootPath = "."
	}
	root, err := ResolvePath(rootPath)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}

	projectsPath := cfg.ProjectsDir
	if strings.TrimSpace(projectsPath) == "" {
		projectsPath = filepath.Join(root, "projects")
	}
	projects, err := ResolvePath(projectsPath)
	if err != nil {
		return nil, fmt.Errorf("projects dir: %w", err)
	}

	return &Workspace{root: root, projectsDir: projects, allowShell: cfg.AllowShell}, nil
}

// Tools returns the workspace tools. shell.exec is only included when
// shell access is allowed.
func (w *Workspace) Tools() []Tool {
	ts := []Tool{
		{
			Name:        "project.scaffold",
			Description: "Create a new project under the projects directory.",
			Schema: ObjectSchema(map[string]any{
				"name": StringProperty("Project name; unsafe characters become '-'"),
			}, "name"),
			Idempotent: true,
			Fn:         w.scaffoldProject,
		},
		{
			Name:        "code.read",
			Description: "Read a text file inside the workspace.",
			Schema: ObjectSchema(map[string]any{
				"path": StringProperty("File path, relative to the workspace root or absolute"),
			}, "path"),
			Idempotent: true,
			Fn:         w.codeRead,
		},
		{
			Name:        "code.write",
			Description: "Write or replace a text file inside the workspace atomically.",
			Schema: ObjectSchema(map[string]any{
				"path":    StringProperty("File path, relative to the workspace root or absolute"),
				"content": StringProperty("Full new file content"),
			}, "path", "content"),
			Fn: w.codeWrite,
		},
	}
	if w.allowShell {
		ts = append(ts, Tool{
			Name:        "shell.exec",
			Description: "Run a shell command in the workspace root (destructive commands are refused).",
			Schema: ObjectSchema(map[string]any{
				"cmd":       StringProperty("Command line"),
				"timeout_s": NumberProperty("Timeout in seconds (default: 45)"),
			}, "cmd"),
			Fn: w.shellExec,
		})
	}
	return ts
}

func (w *Workspace) roots() []string {
	return []string{w.root, w.projectsDir}
}

// SanitizeProjectName replaces unsafe runs with '-' and trims leading and
// trailing '-' and '.'.
func SanitizeProjectName(name string) (string, error) {
	s := unsafeProjectChars.ReplaceAllString(strings.TrimSpace(name), "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return "", fmt.Errorf("%w: project name is empty after sanitization", ErrRefused)
	}
	return s, nil
}

func (w *Workspace) scaffoldProject(_ context.Context, args map[string]any) (any, error) {
	name, err := SanitizeProjectName(stringArg(args, "name"))
	if err != nil {
		return nil, err
	}
	dir, err := WithinRoots([]string{w.projectsDir}, w.projectsDir, name)
	if err != nil {
		return nil, err
	}

	files := map[string]string{
		"README.md":  "# " + name + "\n\nScaffolded by Nova.\n",
		"main.go":    "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"Hello from Nova scaffold\")\n}\n",
		".gitignore": "/bin/\n",
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	for rel, content := range files {
		if err := writeFileAtomic(filepath.Join(dir, filepath.FromSlash(rel)), []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("scaffold %s: %w", name, err)
		}
	}
	log.WithField("path", dir).Info("project scaffolded")
	return map[string]any{"project": name, "path": dir}, nil
}

func (w *Workspace) codeRead(_ context.Context, args map[string]any) (any, error) {
	path, err := WithinRoots(w.roots(), w.root, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrRefused, path)
	}

	b, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	truncated := len(b) > maxReadBytes
	if truncated {
		b = b[:maxReadBytes]
	}
	return map[string]any{
		"path":      path,
		"content":   strings.ToValidUTF8(string(b), ""),
		"truncated": truncated,
	}, nil
}

func (w *Workspace) codeWrite(_ context.Context, args map[string]any) (any, error) {
	path, err := WithinRoots(w.roots(), w.root, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	content, _ := args["content"].(string)

	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrRefused, path)
		}
		perm = info.Mode().Perm()
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := writeFileAtomic(path, []byte(content), perm); err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "bytes": len(content)}, nil
}

// LooksDestructive reports whether command matches the shell denylist.
func LooksDestructive(command string) bool {
	c := strings.ToLower(strings.TrimSpace(command))
	for _, bad := range destructiveCommands {
		if strings.Contains(c, bad) {
			return true
		}
	}
	return false
}

func (w *Workspace) shellExec(ctx context.Context, args map[string]any) (any, error) {
	command := stringArg(args, "cmd")
	if command == "" {
		return nil, fmt.Errorf("shell.exec requires 'cmd'")
	}
	if LooksDestructive(command) {
		return nil, fmt.Errorf("%w: destructive command: %s", ErrRefused, command)
	}

	timeout := defaultShellTimeout
	if v, ok := toFloat(args["timeout_s"]); ok && v > 0 {
		timeout = time.Duration(v * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(ctx, command)
	cmd.Dir = w.root
	cmd.WaitDelay = time.Second
	stdout := &cappedBuffer{max: maxShellOutput}
	stderr := &cappedBuffer{max: maxShellOutput}
	cmd.Stdout, cmd.Stderr = stdout, stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("shell.exec: stopped after %s: %w", timeout, ctxErr)
	}
	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, fmt.Errorf("run command: %w", err)
	}

	return map[string]any{
		"cmd":       command,
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}, nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// cappedBuffer keeps the first max bytes written and drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	s := strings.ToValidUTF8(b.buf.String(), "")
	if b.truncated {
		s += "\n...[truncated]"
	}
	return s
}
