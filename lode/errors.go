package lode

import (
	"errors"
	"fmt"
	"strings"
)

// Storage failure kinds. Match with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	ErrThrottled        = errors.New("rate limited")
	// ErrAuth means no usable credentials; ErrAccessDenied means the
	// credentials were accepted but lack permission.
	ErrAuth         = errors.New("authentication failed")
	ErrAccessDenied = errors.New("access denied")
	ErrNetwork      = errors.New("network error")

	errUnclassified = errors.New("storage error")
)

// StorageError is a ledger storage failure tagged with its kind. The
// underlying error stays in the chain.
type StorageError struct {
	Kind error
	Op   string // init, write or read
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the failure kind.
func (e *StorageError) Is(target error) bool { return errors.Is(e.Kind, target) }

// NewStorageError creates a classified storage error.
func NewStorageError(kind error, op, path string, err error) *StorageError {
	return &StorageError{Kind: kind, Op: op, Path: path, Err: err}
}

// WrapWriteError classifies a failed ledger write. Nil stays nil.
func WrapWriteError(err error, path string) error { return wrap(err, "write", path) }

// WrapReadError classifies a failed ledger read. Nil stays nil.
func WrapReadError(err error, path string) error { return wrap(err, "read", path) }

// WrapInitError classifies a failed dataset open. Nil stays nil.
func WrapInitError(err error, dataset string) error { return wrap(err, "init", dataset) }

func wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return NewStorageError(classifyError(err), op, path, err)
}

// errorPatterns maps message fragments to kinds. Order matters: the first
// matching row wins, so the more specific S3 codes come before generic words.
var errorPatterns = []struct {
	kind  error
	frags []string
}{
	{ErrAccessDenied, []string{"AccessDenied", "Forbidden", "403"}},
	{ErrPermissionDenied, []string{"permission denied", "EACCES"}},
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "ENOENT", "404", "NoSuchKey"}},
	{ErrDiskFull, []string{"no space left", "disk full", "ENOSPC", "quota exceeded"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"}},
	{ErrAuth, []string{"NoCredentialProviders", "credentials", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "DNS", "dial tcp"}},
}

// classifyError picks the kind for err, by type first and then by message.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		for _, frag := range p.frags {
			if strings.Contains(msg, strings.ToLower(frag)) {
				return p.kind
			}
		}
	}
	return errUnclassified
}
