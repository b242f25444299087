package terminal

// AllocationError reports that the operating system refused to allocate
// the PTY pair or spawn the child process. It is not retryable at this
// layer; a PTY/process pair is not transparently resumable.
type AllocationError struct {
	Op  string
	Err error
}

func (e *AllocationError) Error() string {
	return "terminal: " + e.Op + ": " + e.Err.Error()
}

func (e *AllocationError) Unwrap() error { return e.Err }
