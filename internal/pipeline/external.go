package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultGracePeriod is how long a cancelled tool has between SIGTERM and SIGKILL.
const DefaultGracePeriod = 10 * time.Second

const stderrTailLines = 20

// Expand substitutes {name} placeholders in every argument.
func Expand(template []string, vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = r.Replace(arg)
	}
	return out
}

// Tool runs one external program from an argv template.
type Tool struct {
	Stage       string
	Argv        []string
	Dir         string
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Run starts the program and waits for it. Stderr is streamed into the log
// while the program runs; stdout is returned. Cancelling ctx sends SIGTERM
// and kills the program if it is still running after the grace period.
func (t Tool) Run(ctx context.Context, vars map[string]string) (string, error) {
	argv := Expand(t.Argv, vars)
	if len(argv) == 0 || argv[0] == "" {
		return "", &ToolError{Stage: t.Stage, Command: "(none)", Cause: errors.New("no command configured")}
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := t.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.Dir
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = grace

	var out bytes.Buffer
	cmd.Stdout = &out
	pr, pw := io.Pipe()
	cmd.Stderr = pw

	logger.Info("starting external tool", "stage", t.Stage, "command", strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		return "", &ToolError{Stage: t.Stage, Command: argv[0], Cause: err}
	}

	var tail []string
	var g errgroup.Group
	g.Go(func() error {
		err := cmd.Wait()
		_ = pw.Close()
		return err
	})
	g.Go(func() error {
		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			logger.Debug(line, "stage", t.Stage, "stream", "stderr")
			tail = append(tail, line)
			if len(tail) > stderrTailLines {
				tail = tail[1:]
			}
		}
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
		return nil
	})
	waitErr := g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &ToolError{Stage: t.Stage, Command: argv[0], Stderr: strings.Join(tail, "\n"), Cause: ctxErr}
	}
	if waitErr != nil {
		te := &ToolError{Stage: t.Stage, Command: argv[0], Stderr: strings.Join(tail, "\n"), Cause: waitErr}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			te.ExitCode = exitErr.ExitCode()
			te.Cause = nil
		}
		return "", te
	}
	return out.String(), nil
}
