package scrobbler

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of one backend call.
type Kind int

const (
	KindOK Kind = iota
	KindAuth
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindAuth:
		return "auth_error"
	case KindOther:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CallError is the only error shape backends may surface from now-playing,
// scrobble and love calls. Anything else is a contract violation.
type CallError struct {
	Kind Kind
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// AuthErr wraps err as an auth-kind call error: credentials are missing,
// invalid or expired.
func AuthErr(err error) error {
	return &CallError{Kind: KindAuth, Err: err}
}

// OtherErr wraps err as an other-kind call error: network, backend or
// service failure, retryable without touching binding state.
func OtherErr(err error) error {
	return &CallError{Kind: KindOther, Err: err}
}

// Result is one backend's settled outcome within an aggregate dispatch.
type Result struct {
	ScrobblerID string
	Kind        Kind
	Err         error
}

func (r Result) OK() bool {
	return r.Kind == KindOK
}

// Results aggregates one Result per dispatched backend.
type Results []Result

// Failed returns the subset of results that did not succeed.
func (rs Results) Failed() Results {
	var failed Results
	for _, r := range rs {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// AllOK reports whether every dispatched backend succeeded.
func (rs Results) AllOK() bool {
	return len(rs.Failed()) == 0
}

// classify converts a backend call error into a Result. A nil error is a
// success. An error that is not a CallError means the backend broke the
// contract, and that is a programming error we refuse to absorb.
func classify(scrobblerID string, err error) Result {
	if err == nil {
		return Result{ScrobblerID: scrobblerID, Kind: KindOK}
	}

	var callErr *CallError
	if !errors.As(err, &callErr) {
		panic(fmt.Sprintf("scrobbler %q returned unclassified error: %v", scrobblerID, err))
	}

	return Result{ScrobblerID: scrobblerID, Kind: callErr.Kind, Err: err}
}
