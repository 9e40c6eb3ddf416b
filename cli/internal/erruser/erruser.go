// Package erruser provides errors whose Error() returns only a user-facing
// message; the cause is available via Unwrap() for the diagnostic log.
package erruser

import "errors"

// Err holds a user-facing message and an optional cause.
type Err struct {
	Msg string
	Err error
}

// Error returns the user-facing message only.
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

// Unwrap returns the underlying error. Safe on a nil receiver.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an error with the given user-facing message. If err is non-nil,
// it is wrapped and reachable through errors.Is/As and Details.
// If err is nil, returns a simple error with just msg (no Unwrap).
func New(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return &Err{Msg: msg, Err: err}
}

// Details returns the technical cause behind the first user-facing error in
// err's chain, or "" when there is none.
func Details(err error) string {
	var u *Err
	if !errors.As(err, &u) || u.Err == nil {
		return ""
	}
	return u.Err.Error()
}
