package buffer

import "io"

// Copy copies src to dst using a pooled buffer.
func Copy(dst io.Writer, src io.Reader) error {
	bufp := tPool.Get().(*[]byte)
	defer tPool.Put(bufp)
	buf := *bufp

	_, err := io.CopyBuffer(dst, src, buf)
	return err
}

// Join pumps both directions between a and b and returns the first error
// (nil on a clean close of either side).
func Join(a, b io.ReadWriter) error {
	errChan := make(chan error, 2)
	go func() {
		errChan <- Copy(a, b)
	}()
	go func() {
		errChan <- Copy(b, a)
	}()
	return <-errChan
}
