// Package terminal drives a single shell (or arbitrary command) behind a
// pseudo-terminal. Open allocates the PTY pair, spawns the child with the
// slave side attached as its controlling terminal, and returns a Terminal
// exposing the master side as independently usable read and write halves
// plus window-size control. Closing the Terminal unconditionally kills the
// child, so no orphaned process outlives the session.
//
// Each Terminal owns exactly one child for its entire lifetime. Managing
// multiple sessions and moving bytes to remote clients are the caller's
// concern.
package terminal
