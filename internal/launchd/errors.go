package launchd

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures of launchd operations.
type Kind int

const (
	// KindServiceNotRunning: the target is already absent from the
	// requested state. Callers fold it into success.
	KindServiceNotRunning Kind = iota + 1
	// KindLaunchd: launchctl rejected the operation.
	KindLaunchd
	// KindParse: print output did not match the line grammar.
	KindParse
	// KindIO: spawning, escalating or reading failed.
	KindIO
)

var (
	ErrServiceNotRunning = errors.New("launchd: service not running")
	ErrLaunchd           = errors.New("launchd: launchctl failed")
	ErrParse             = errors.New("launchd: unexpected print output")
	ErrIO                = errors.New("launchd: i/o failure")
)

func (k Kind) String() string {
	switch k {
	case KindServiceNotRunning:
		return "ServiceNotRunning"
	case KindLaunchd:
		return "LaunchdError"
	case KindParse:
		return "ParseError"
	case KindIO:
		return "IOError"
	}
	return "Unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindServiceNotRunning:
		return ErrServiceNotRunning
	case KindLaunchd:
		return ErrLaunchd
	case KindParse:
		return ErrParse
	case KindIO:
		return ErrIO
	}
	return nil
}

// Error describes a failed launchctl invocation or print parse.
type Error struct {
	Kind     Kind
	Op       string // subcommand or "parse <section>"
	Target   string
	ExitCode int
	Stderr   string
	Line     string // offending line for KindParse
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Target != "" {
		b.WriteString(" ")
		b.WriteString(e.Target)
	}
	b.WriteString(": ")

	switch e.Kind {
	case KindServiceNotRunning:
		fmt.Fprintf(&b, "service not running (exit %d)", e.ExitCode)
	case KindLaunchd:
		fmt.Fprintf(&b, "exit %d", e.ExitCode)
		if msg := strings.TrimSpace(e.Stderr); msg != "" {
			b.WriteString(": ")
			b.WriteString(msg)
		}
	case KindParse:
		fmt.Fprintf(&b, "unexpected line %q", e.Line)
	default:
		if e.Err != nil {
			b.WriteString(e.Err.Error())
		} else {
			b.WriteString(e.Kind.String())
		}
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind carried by err, or 0 when err is not a launchd
// error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}

// IsNotRunning reports whether err is a ServiceNotRunning classification.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrServiceNotRunning)
}
