//go:build linux

package watch

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const inotifyBufferSize = 4096

// Inotify is a Source backed by inotify(7).
type Inotify struct {
	fd    int
	wakeR int
	wakeW int

	mu     sync.Mutex
	closed bool
}

// NewInotify initialises an inotify instance.
func NewInotify() (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("inotify_init1", err)
	}

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("pipe2", err)
	}

	return &Inotify{fd: fd, wakeR: pipe[0], wakeW: pipe[1]}, nil
}

func (in *Inotify) Add(path string) (Handle, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return NoHandle, ErrClosed
	}

	wd, err := unix.InotifyAddWatch(in.fd, path, unix.IN_MOVED_TO)
	if err != nil {
		return NoHandle, &os.PathError{Op: "inotify_add_watch", Path: path, Err: err}
	}
	return Handle(wd), nil
}

func (in *Inotify) Remove(h Handle) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}
	if !h.Valid() {
		return nil
	}

	if _, err := unix.InotifyRmWatch(in.fd, uint32(h)); err != nil {
		return os.NewSyscallError("inotify_rm_watch", err)
	}
	return nil
}

func (in *Inotify) Stream(ctx context.Context, out chan<- []Record) error {
	stop := context.AfterFunc(ctx, in.wake)
	defer stop()

	fds := []unix.PollFd{
		{Fd: int32(in.fd), Events: unix.POLLIN},
		{Fd: int32(in.wakeR), Events: unix.POLLIN},
	}
	buf := make([]byte, inotifyBufferSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.Poll(fds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return os.NewSyscallError("poll", err)
		}
		if n == 0 {
			continue
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			in.drainWake()
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		batch, err := in.drain(buf)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if !send(ctx, out, batch) {
			return nil
		}
	}
}

// drain reads until the non-blocking descriptor reports EAGAIN.
func (in *Inotify) drain(buf []byte) ([]Record, error) {
	var batch []Record
	for {
		n, err := unix.Read(in.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return batch, nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return batch, os.NewSyscallError("read", err)
		}
		if n <= 0 {
			return batch, nil
		}

		records, err := parseEvents(buf[:n])
		batch = append(batch, records...)
		if err != nil {
			return batch, err
		}
	}
}

// parseEvents decodes a buffer of struct inotify_event.
func parseEvents(buf []byte) ([]Record, error) {
	var records []Record
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		wd := int32(binary.NativeEndian.Uint32(buf[offset:]))
		mask := binary.NativeEndian.Uint32(buf[offset+4:])
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12:]))

		start := offset + unix.SizeofInotifyEvent
		end := start + nameLen
		if end > len(buf) {
			return records, fmt.Errorf("inotify: truncated event at offset %d", offset)
		}
		offset = end

		if mask&unix.IN_Q_OVERFLOW != 0 {
			return records, ErrOverflow
		}

		var flags Flags
		if mask&unix.IN_ISDIR != 0 {
			flags |= IsDir
		}
		if mask&unix.IN_MOVED_TO != 0 {
			flags |= MovedTo
		}

		name := buf[start:end]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}

		records = append(records, Record{Handle: Handle(wd), Name: string(name), Flags: flags})
	}
	return records, nil
}

func (in *Inotify) wake() {
	_, _ = unix.Write(in.wakeW, []byte{1})
}

func (in *Inotify) drainWake() {
	var b [16]byte
	for {
		if n, err := unix.Read(in.wakeR, b[:]); err != nil || n <= 0 {
			return
		}
	}
}

func (in *Inotify) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true

	err := unix.Close(in.fd)
	_ = unix.Close(in.wakeR)
	_ = unix.Close(in.wakeW)
	if err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

var _ Source = (*Inotify)(nil)
