package fake

// BadWriter is a writer that always returns the fake error.
//
// - implements io.Writer
type BadWriter struct{}

// NewBadWriter returns a new writer that always fails.
func NewBadWriter() BadWriter {
	return BadWriter{}
}

// Write implements io.Writer.
func (BadWriter) Write([]byte) (int, error) {
	return 0, fakeErr
}
