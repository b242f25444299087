package terminal

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	ptylib "github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Terminal is a live PTY session: one child process attached to the slave
// side, with the master side held as two duplicated descriptors serving
// the read and write halves. It implements io.Reader, io.Writer and
// io.Closer.
type Terminal struct {
	id    string
	cmd   *exec.Cmd
	read  *os.File
	write *os.File
	log   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Terminal at open time.
type Option func(*options)

type options struct {
	log *zap.Logger
	dir string
}

// WithLogger attaches a logger used to trace session lifecycle. The
// default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithDir sets the child's working directory. The default is inherited
// from the parent.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// Open spawns command on a fresh PTY and returns the session driving it.
//
// The command is resolved on the search path and started as a session
// leader with the PTY slave as its controlling terminal; stdin, stdout and
// stderr all point at the slave. The child environment inherits the parent
// environment with the terminal-identity variables forced (see childEnv)
// so the spawned shell reports a consistent terminal type.
//
// The PTY starts with no window size set; GetSize reports (0, 0) until the
// caller resizes it. Failure to allocate the PTY or spawn the child
// returns an *AllocationError and leaves no side effects behind.
func Open(command string, opts ...Option) (*Terminal, error) {
	cfg := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	cmd := exec.Command(command)
	cmd.Dir = cfg.dir
	cmd.Env = childEnv(os.Environ())

	ptmx, err := ptylib.Start(cmd)
	if err != nil {
		return nil, &AllocationError{Op: "start pty", Err: err}
	}

	// Each half gets its own descriptor over the one master so a pending
	// read never serializes with a concurrent write on shared handle
	// state. Both refer to the same kernel endpoint.
	write, err := dupFile(ptmx)
	if err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return nil, &AllocationError{Op: "dup master", Err: err}
	}

	t := &Terminal{
		id:    uuid.New().String(),
		cmd:   cmd,
		read:  ptmx,
		write: write,
		log:   cfg.log,
	}

	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()

	t.log.Debug("terminal opened",
		zap.String("session_id", t.id),
		zap.String("command", command),
		zap.Int("pid", cmd.Process.Pid),
	)

	return t, nil
}

// ID returns the session's unique identifier.
func (t *Terminal) ID() string { return t.id }

// Pid returns the child's process id. The Terminal only holds signaling
// authority over the child; the process itself belongs to the OS.
func (t *Terminal) Pid() int { return t.cmd.Process.Pid }

// Read yields bytes produced by the child. Once the child has exited and
// the slave side has no writers left, the master reports EIO; callers see
// that as a conventional io.EOF.
func (t *Terminal) Read(p []byte) (int, error) {
	n, err := t.read.Read(p)
	if err != nil && errors.Is(err, unix.EIO) {
		return n, io.EOF
	}
	return n, err
}

// Write sends bytes to the child's input. OS-level errors (e.g. broken
// pipe after the child exits) propagate per call.
func (t *Terminal) Write(p []byte) (int, error) {
	return t.write.Write(p)
}

// GetSize reports the PTY's current window size. A freshly opened
// Terminal reports (0, 0) until SetSize is called.
func (t *Terminal) GetSize() (rows, cols uint16, err error) {
	ws, err := ptylib.GetsizeFull(t.read)
	if err != nil {
		return 0, 0, err
	}
	return ws.Rows, ws.Cols, nil
}

// SetSize changes the PTY's window size to rows x cols. Pixel dimensions
// are always zero. The kernel notifies the slave's foreground process
// group with SIGWINCH.
func (t *Terminal) SetSize(rows, cols uint16) error {
	return ptylib.Setsize(t.read, &ptylib.Winsize{Rows: rows, Cols: cols})
}

// Close kills the child and releases both master handles. It runs at most
// once; later calls return the first result. The kill is a hard SIGKILL
// with no grace period: orderly shutdown, if wanted, is negotiated by the
// caller (e.g. writing an exit command) before closing. A child that
// already exited is not an error.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		t.log.Debug("terminal closing",
			zap.String("session_id", t.id),
			zap.Int("pid", t.cmd.Process.Pid),
		)

		if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			t.closeErr = err
		}
		if err := t.read.Close(); err != nil && t.closeErr == nil {
			t.closeErr = err
		}
		if err := t.write.Close(); err != nil && t.closeErr == nil {
			t.closeErr = err
		}
	})
	return t.closeErr
}

// childEnv builds the child's environment: the parent environment with the
// terminal-identity variables forced to fixed values and any inherited
// TERM_PROGRAM_VERSION dropped, so the spawned shell sees the same
// terminal type regardless of where the parent runs.
func childEnv(parent []string) []string {
	env := make([]string, 0, len(parent)+3)
	for _, kv := range parent {
		switch {
		case strings.HasPrefix(kv, "TERM="),
			strings.HasPrefix(kv, "COLORTERM="),
			strings.HasPrefix(kv, "TERM_PROGRAM="),
			strings.HasPrefix(kv, "TERM_PROGRAM_VERSION="):
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"TERM_PROGRAM=webpty",
	)
}

// dupFile duplicates f's descriptor at the OS level. The duplicate shares
// the open file description (offset, status flags, the nonblocking mode
// set by the runtime poller) but carries its own handle state.
func dupFile(f *os.File) (*os.File, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		dupFd  int
		dupErr error
	)
	if err := rc.Control(func(fd uintptr) {
		dupFd, dupErr = unix.Dup(int(fd))
		if dupErr == nil {
			unix.CloseOnExec(dupFd)
		}
	}); err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, dupErr
	}

	return os.NewFile(uintptr(dupFd), f.Name()), nil
}
