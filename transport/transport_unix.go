//go:build unix

package transport

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// osTransport drives real descriptors through non-blocking syscalls.
type osTransport struct{}

// OS returns the operating-system transport.
func OS() Transport {
	return osTransport{}
}

// Recv reads available bytes from fd.
func (osTransport) Recv(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
			return 0, ErrAgain
		case errors.Is(err, unix.EBADF):
			return 0, ErrBadDescriptor
		default:
			return 0, err
		}
	}
}

// Send writes as much of p as the socket accepts.
func (osTransport) Send(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
			return 0, ErrAgain
		case errors.Is(err, unix.EBADF):
			return 0, ErrBadDescriptor
		default:
			return 0, err
		}
	}
}

// Close closes the descriptor.
func (osTransport) Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		if errors.Is(err, unix.EBADF) {
			return ErrBadDescriptor
		}
		return err
	}
	return nil
}
