package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Named is implemented by errors that carry an explicit kind, such as "TypeError".
type Named interface {
	Name() string
}

// Stacked is implemented by errors that carry a captured stack trace.
type Stacked interface {
	Stack() string
}

// Categorized is implemented by errors that already know their category.
type Categorized interface {
	Category() Category
}

// RenderError is a named failure raised while rendering a subtree.
type RenderError struct {
	Kind       string
	Msg        string
	StackTrace string
}

// NewRenderError creates a RenderError with the given kind and message.
func NewRenderError(name, message string) *RenderError {
	return &RenderError{Kind: name, Msg: message}
}

func (e *RenderError) Error() string { return e.Msg }
func (e *RenderError) Name() string  { return e.Kind }
func (e *RenderError) Stack() string { return e.StackTrace }

// WithStack returns a copy of e carrying stack.
func (e *RenderError) WithStack(stack string) *RenderError {
	c := *e
	c.StackTrace = stack
	return &c
}

// CategoryError tags an underlying error with a category.
type CategoryError struct {
	Cat Category
	Err error
}

// WithCategory wraps err so it classifies as cat.
func WithCategory(cat Category, err error) error {
	if err == nil {
		return nil
	}
	return &CategoryError{Cat: cat, Err: err}
}

func (e *CategoryError) Error() string      { return e.Err.Error() }
func (e *CategoryError) Unwrap() error      { return e.Err }
func (e *CategoryError) Category() Category { return e.Cat }

// generic Go error types that have no meaningful kind of their own
var anonymousTypes = map[string]bool{
	"errorString": true,
	"wrapError":   true,
	"wrapErrors":  true,
	"joinError":   true,
}

// ErrorName returns the kind of err: its Name() if any error in the chain
// provides one, otherwise its Go type name.
func ErrorName(err error) string {
	if err == nil {
		return "Error"
	}
	var named Named
	if errors.As(err, &named) {
		if n := named.Name(); n != "" {
			return n
		}
	}
	t := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	if t == "" || anonymousTypes[t] {
		return "Error"
	}
	return t
}

// ErrorStack returns the stack carried by err, if any.
func ErrorStack(err error) string {
	var st Stacked
	if errors.As(err, &st) {
		return st.Stack()
	}
	return ""
}
