//go:build darwin
// +build darwin

package poller

import (
	"golang.org/x/sys/unix"
)

// KqueuePoller is a kqueue-based I/O multiplexer, retasked from the
// teacher's accept-loop readiness watcher into a single-fd liveness
// probe for pooled Connections.
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates a new Poller (macOS).
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	return &KqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 16),
	}, nil
}

// Add adds a file descriptor to the watch list.
func (p *KqueuePoller) Add(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Remove removes a file descriptor from the watch list.
func (p *KqueuePoller) Remove(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Wait waits for I/O events.
func (p *KqueuePoller) Wait(timeout int) ([]int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeout / 1000),
			Nsec: int64((timeout % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != unix.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, int(p.events[i].Ident))
	}
	return fds, nil
}

// Close closes the Poller.
func (p *KqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}

// IsReadable performs a zero-timeout readability peek on fd: it returns
// true if the fd has data or EOF pending, false if nothing is ready. It
// never blocks, matching spec §4.A's "zero-cost peek" requirement.
func IsReadable(fd int) (bool, error) {
	p, err := NewPoller()
	if err != nil {
		return false, err
	}
	defer p.Close()

	if err := p.Add(fd); err != nil {
		return false, err
	}
	fds, err := p.Wait(0)
	if err != nil {
		return false, err
	}
	return len(fds) > 0, nil
}

// SetNonblock sets non-blocking mode.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
