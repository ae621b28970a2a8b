package helpers

import (
	"bufio"
	"io"
)

func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// WriteFlush writes whole b then flushes buffered writer.
// Either all of b reaches underlying writer or error is returned.
func WriteFlush(w *bufio.Writer, b []byte) error {
	if err := WriteAll(w, b); err != nil {
		return err
	}
	return w.Flush()
}
