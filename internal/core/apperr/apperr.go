// Package apperr defines the error taxonomy shared by the impact engine.
//
// Four kinds are distinguished: validation errors for malformed or inconsistent
// inputs, alignment errors for rasters whose grids disagree, plugin execution
// errors for failures inside an impact function, and io errors raised by the
// storage collaborators. The core never re-wraps an io error into another kind.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAlignment  Kind = "alignment"
	KindPlugin     Kind = "plugin_execution"
	KindIO         Kind = "io"
	KindInternal   Kind = "internal"
)

type Error struct {
	Kind Kind
	// Plugin names the impact function for KindPlugin errors.
	Plugin string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Plugin != "" {
		prefix += " [" + e.Plugin + "]"
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Alignment(format string, args ...any) error {
	return &Error{Kind: KindAlignment, Msg: fmt.Sprintf(format, args...)}
}

// Plugin wraps err as a plugin execution failure of the named impact function.
func Plugin(name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPlugin, Plugin: name, Err: err}
}

// IO tags a collaborator failure. Callers above the collaborator pass it on as is.
func IO(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Msg: msg, Err: err}
}

// KindOf reports the kind of the outermost taxonomy error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// PluginName returns the impact function name carried by a plugin execution error.
func PluginName(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindPlugin {
		return e.Plugin
	}
	return ""
}
