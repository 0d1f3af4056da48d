package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/breeze-rmm/adm/internal/logging"
	"github.com/breeze-rmm/adm/internal/privilege"
)

var log = logging.L("executor")

const (
	// DefaultWorkDir is the fixed working directory for spawned commands.
	DefaultWorkDir = "/"

	// MaxOutputSize is the maximum size of stdout/stderr to capture.
	// launchctl print for a busy system domain runs to a few hundred KB.
	MaxOutputSize = 8 * 1024 * 1024
)

type principalKind int

const (
	principalCurrent principalKind = iota
	principalRoot
	principalUID
)

// Principal is the identity a command runs as.
type Principal struct {
	kind principalKind
	uid  int
}

// CurrentUser runs the command as the invoking process identity.
func CurrentUser() Principal { return Principal{kind: principalCurrent} }

// Root runs the command as uid 0.
func Root() Principal { return Principal{kind: principalRoot} }

// AsUID runs the command as the given uid.
func AsUID(uid int) Principal {
	if uid == 0 {
		return Root()
	}
	return Principal{kind: principalUID, uid: uid}
}

// IsRoot reports whether the principal is root.
func (p Principal) IsRoot() bool { return p.kind == principalRoot }

// UID returns the target uid; ok is false for CurrentUser.
func (p Principal) UID() (uid int, ok bool) {
	switch p.kind {
	case principalRoot:
		return 0, true
	case principalUID:
		return p.uid, true
	}
	return 0, false
}

func (p Principal) String() string {
	switch p.kind {
	case principalRoot:
		return "root"
	case principalUID:
		return "uid:" + strconv.Itoa(p.uid)
	}
	return "current"
}

// Result is the captured outcome of one command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner is the boundary to external binaries. Non-zero exits are reported
// through Result.ExitCode; the error return is reserved for failures to
// spawn or escalate.
type Runner interface {
	Run(ctx context.Context, binary string, args []string, as Principal) (Result, error)
}

// Options configures an Executor.
type Options struct {
	WorkDir  string
	SudoPath string
	// Timeout bounds a single command. Zero means no timeout.
	Timeout time.Duration
}

// Executor runs commands through os/exec, wrapping them in sudo when the
// requested principal differs from the effective uid.
type Executor struct {
	workDir string
	timeout time.Duration
	euid    int
	sudo    string
	hasSudo bool
}

// New creates an Executor bound to the current process identity.
func New(opts Options) *Executor {
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = DefaultWorkDir
	}
	sudo, ok := privilege.SudoAvailable(opts.SudoPath)
	return &Executor{
		workDir: workDir,
		timeout: opts.Timeout,
		euid:    privilege.EffectiveUID(),
		sudo:    sudo,
		hasSudo: ok,
	}
}

// Run executes binary with args as the given principal.
func (e *Executor) Run(ctx context.Context, binary string, args []string, as Principal) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	argv, err := e.argv(binary, args, as)
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.workDir
	cmd.Stdin = nil
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: MaxOutputSize}
	setProcessGroup(cmd)

	log.Debug("exec", "argv", strings.Join(argv, " "), "as", as.String())

	start := time.Now()
	err = cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			if killErr := killProcessGroup(cmd); killErr != nil {
				log.Warn("failed to kill process group", "binary", binary, "error", killErr)
			}
			result.ExitCode = -1
			return result, fmt.Errorf("executor: %s timed out after %s", binary, e.timeout)
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			result.ExitCode = -1
			return result, fmt.Errorf("executor: start %s: %w", binary, err)
		}
	}

	log.Debug("exit", "binary", binary, logging.KeyExitCode, result.ExitCode, logging.KeyDurationMs, result.Duration.Milliseconds())
	return result, nil
}

// argv builds the final command line, prefixing a sudo wrapper when the
// principal is not the effective identity.
func (e *Executor) argv(binary string, args []string, as Principal) ([]string, error) {
	direct := append([]string{binary}, args...)

	uid, ok := as.UID()
	if !ok || uid == e.euid {
		return direct, nil
	}
	if !e.hasSudo {
		return nil, fmt.Errorf("executor: run %s as %s: %w", binary, as, privilege.ErrNoEscalation)
	}

	wrapped := []string{e.sudo, "-n"}
	if !as.IsRoot() {
		wrapped = append(wrapped, "-u", "#"+strconv.Itoa(uid))
	}
	return append(wrapped, direct...), nil
}

// limitedWriter wraps a buffer with a size limit. Excess output is dropped
// without failing the child process.
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.written >= w.limit {
		return len(p), nil
	}
	chunk := p
	if remaining := w.limit - w.written; len(chunk) > remaining {
		chunk = chunk[:remaining]
	}
	n, err := w.buf.Write(chunk)
	w.written += n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
