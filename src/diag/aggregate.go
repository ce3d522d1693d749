package diag

import (
	"github.com/hashicorp/go-multierror"
)

// CheckError reports each of the failures within err as a separate error, in order.
// err may be a *multierror.Error, anything else that wraps several errors (e.g. from errors.Join),
// or just a single error. Nothing is reported for nil.
func (h *Handler) CheckError(err error) {
	for _, e := range flatten(err) {
		h.Error(e.Error())
	}
}

// flatten returns the individual errors within err.
func flatten(err error) []error {
	switch e := err.(type) {
	case nil:
		return nil
	case *multierror.Error:
		if e == nil {
			return nil
		}
		return flattenAll(e.WrappedErrors())
	case interface{ Unwrap() []error }:
		return flattenAll(e.Unwrap())
	default:
		return []error{err}
	}
}

func flattenAll(errs []error) []error {
	ret := make([]error, 0, len(errs))
	for _, err := range errs {
		ret = append(ret, flatten(err)...)
	}
	return ret
}
