package ical

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNoInput       = errors.New("no ICS data provided to combine")
	ErrNothingParsed = errors.New("no parseable ICS data provided")
)

// MergeError is returned by the merger; args carries context such as the
// index of the document that failed.
type MergeError struct {
	msg  string
	args map[string]any
	err  error
}

func NewMergeError(msg string, args map[string]any, err error) *MergeError {
	if args == nil {
		args = make(map[string]any)
	}
	return &MergeError{
		msg:  msg,
		args: args,
		err:  err,
	}
}

// Get the error message
func (e *MergeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.msg)

	keys := make([]string, 0, len(e.args))
	for key := range e.args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sb.WriteString(fmt.Sprintf(" | %s: %v", key, e.args[key]))
	}
	if e.err != nil {
		sb.WriteString(" | ")
		sb.WriteString(e.err.Error())
	}
	return sb.String()
}

func (e *MergeError) Unwrap() error {
	return e.err
}

// Arg returns one of the context values attached to the error.
func (e *MergeError) Arg(key string) (any, bool) {
	v, ok := e.args[key]
	return v, ok
}
