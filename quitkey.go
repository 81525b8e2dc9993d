package main

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/term"
)

// watchQuitKey switches stdin to raw mode and calls quit when q or Ctrl+C
// is pressed. Raw mode swallows SIGINT, hence the explicit Ctrl+C byte.
func watchQuitKey(quit func()) (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 1 && (buf[0] == 'q' || buf[0] == 'Q' || buf[0] == 3) {
				quit()
				return
			}
		}
	}()
	return func() { term.Restore(fd, old) }, nil
}

// crlfWriter restores carriage returns that raw mode stops the terminal
// from adding.
type crlfWriter struct{ w io.Writer }

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
