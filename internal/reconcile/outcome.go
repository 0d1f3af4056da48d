package reconcile

import "fmt"

// TargetError is a failed target and the reason.
type TargetError struct {
	Target string
	Err    error
}

func (e TargetError) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, e.Err)
}

func (e TargetError) Unwrap() error { return e.Err }

// Outcome accumulates per-target results of a batch in execution order.
// Every attempted target lands in exactly one of Successes or Errors.
// Warnings hold problems that did not change a target's result, such as a
// pid that outlived a verified turn-off.
type Outcome struct {
	Successes []string
	Errors    []TargetError
	Warnings  []TargetError
	Skipped   []string
}

func (o *Outcome) succeed(target string) {
	o.Successes = append(o.Successes, target)
}

func (o *Outcome) fail(target string, err error) {
	o.Errors = append(o.Errors, TargetError{Target: target, Err: err})
}

func (o *Outcome) warn(target string, err error) {
	o.Warnings = append(o.Warnings, TargetError{Target: target, Err: err})
}

func (o *Outcome) skip(target string) {
	o.Skipped = append(o.Skipped, target)
}

// Summary renders "N succeeded, M failed".
func (o Outcome) Summary() string {
	return fmt.Sprintf("%d succeeded, %d failed", len(o.Successes), len(o.Errors))
}
