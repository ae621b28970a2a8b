//go:build !linux

package pad

import (
	"os"

	"github.com/juju/errors"
)

func grab(f *os.File) error {
	return errors.NotSupportedf("evdev grab")
}
