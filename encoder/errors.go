package encoder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// Class tells the retry loop whether another attempt can help.
type Class int

const (
	// Transient failures are I/O-class: a busy file, exhausted descriptors,
	// a flaky remote, an expired attempt deadline.
	Transient Class = iota + 1
	// NonRecoverable failures are structural: corrupt input, unknown format,
	// missing tooling, programming errors.
	NonRecoverable
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case NonRecoverable:
		return "non_recoverable"
	default:
		return "unclassified"
	}
}

// Error is a transform failure tagged at the point where it happened.
type Error struct {
	Class Class
	Op    string // open, enhance, resize, save, publish, ...
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient tags err as retryable.
func NewTransient(op, path string, err error) error {
	return &Error{Class: Transient, Op: op, Path: path, Err: err}
}

// NewNonRecoverable tags err as not worth retrying.
func NewNonRecoverable(op, path string, err error) error {
	return &Error{Class: NonRecoverable, Op: op, Path: path, Err: err}
}

// Classify returns the class of err. A tagged *Error keeps its tag; untagged
// errors are transient when they come from the OS or the network and
// non-recoverable otherwise. Classify(nil) is 0.
func Classify(err error) Class {
	if err == nil {
		return 0
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Class
	}
	if isIOClass(err) {
		return Transient
	}
	return NonRecoverable
}

// tag wraps err with the class Classify would give it.
func tag(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	if isIOClass(err) {
		return NewTransient(op, path, err)
	}
	return NewNonRecoverable(op, path, err)
}

func isIOClass(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var (
		pathErr    *fs.PathError
		syscallErr *os.SyscallError
		linkErr    *os.LinkError
		errno      syscall.Errno
		netErr     net.Error
	)
	switch {
	case errors.As(err, &pathErr),
		errors.As(err, &syscallErr),
		errors.As(err, &linkErr),
		errors.As(err, &errno),
		errors.As(err, &netErr):
		return true
	}
	return false
}
