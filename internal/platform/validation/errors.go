// Package validation holds the field-keyed result type returned by every
// write-gating rule in the billing domain.
package validation

import (
	"sort"
	"strings"
)

// Errors maps a field name to a user-facing message. An empty (or nil)
// Errors value means the checked entity is valid.
type Errors map[string]string

// Add records msg for field unless a message is already present for it.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; ok {
		return
	}
	e[field] = msg
}

// Merge copies every message of other into e. Later rules overwrite earlier
// ones for the same field.
func (e Errors) Merge(other Errors) Errors {
	for k, v := range other {
		e[k] = v
	}
	return e
}

// Empty reports whether no rule failed.
func (e Errors) Empty() bool { return len(e) == 0 }

// Err returns e as an error, or nil when empty. Services use it so that a
// nil map never becomes a non-nil error interface.
func (e Errors) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

// Fields returns the failing field names in sorted order.
func (e Errors) Fields() []string {
	fields := make([]string, 0, len(e))
	for k := range e {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, f := range e.Fields() {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Collect runs each check and merges the results in order.
func Collect(checks ...func() Errors) Errors {
	out := Errors{}
	for _, check := range checks {
		out.Merge(check())
	}
	return out
}

// Observer is told about every rejected write, e.g. to count rejections.
type Observer interface {
	IncrementRejection(entity string, fields []string)
}

// Reject returns errs as an error and reports it to o. It returns nil when
// errs is empty. o may be nil.
func Reject(o Observer, entity string, errs Errors) error {
	if errs.Empty() {
		return nil
	}
	if o != nil {
		o.IncrementRejection(entity, errs.Fields())
	}
	return errs
}
