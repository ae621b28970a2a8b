package pad

import (
	"os"

	"golang.org/x/sys/unix"
)

const ioctlEVIOCGRAB = 0x40044590

// grab takes exclusive access so desktop does not also see gamepad input.
func grab(f *os.File) error {
	return unix.IoctlSetInt(int(f.Fd()), ioctlEVIOCGRAB, 1)
}
