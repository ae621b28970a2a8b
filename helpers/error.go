package helpers

import (
	"strings"

	"github.com/juju/errors"
)

// FoldErrors joins non-nil errors into one, line per error.
// Single non-nil error is returned as is, so errors.Cause() still works.
func FoldErrors(errs []error) error {
	var single error
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			single = e
			ss = append(ss, e.Error())
		}
	}
	switch len(ss) {
	case 0:
		return nil
	case 1:
		return single
	}
	return errors.New(strings.Join(ss, "\n"))
}
