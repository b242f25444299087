package terminal

import "os"

// DefaultShell returns the user's preferred shell from $SHELL, falling
// back to /bin/bash when unset. Whether the path actually resolves to an
// executable is only discovered when a session is opened with it.
func DefaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}
