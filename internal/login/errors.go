package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/challenge"
)

// Kind classifies why an attempt failed.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNavigationTimeout
	KindChallengeTimeout
	KindFormNotFound
	KindSubmitNotFound
	KindLoginRejected
	KindChallengeBlocked
	KindIndeterminateState
)

func (k Kind) String() string {
	switch k {
	case KindNavigationTimeout:
		return "NavigationTimeout"
	case KindChallengeTimeout:
		return "ChallengeTimeout"
	case KindFormNotFound:
		return "FormNotFound"
	case KindSubmitNotFound:
		return "SubmitNotFound"
	case KindLoginRejected:
		return "LoginRejected"
	case KindChallengeBlocked:
		return "ChallengeBlocked"
	case KindIndeterminateState:
		return "IndeterminateState"
	default:
		return "UnexpectedRuntimeError"
	}
}

// Error is the single error type an attempt fails with.
type Error struct {
	Kind    Kind
	Message string
	// URL and Title are set for IndeterminateState.
	URL   string
	Title string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindUnexpected when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func rejected(message string) *Error {
	return &Error{Kind: KindLoginRejected, Message: message}
}

func indeterminate(url, title string) *Error {
	return &Error{
		Kind:    KindIndeterminateState,
		Message: fmt.Sprintf("final URL: %s, title: %s", url, title),
		URL:     url,
		Title:   title,
	}
}

// classify maps lower-layer sentinels onto the taxonomy. It is the only place
// where that mapping happens.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, browser.ErrNavigationTimeout):
		return newError(KindNavigationTimeout, "page did not reach network idle", err)
	case errors.Is(err, challenge.ErrTimeout):
		return newError(KindChallengeTimeout, "challenge did not clear in time", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(KindUnexpected, "attempt interrupted", err)
	default:
		return newError(KindUnexpected, "", err)
	}
}
