//go:build unix

package netif

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/haukened/rr-portal/internal/portal/domain"
	"golang.org/x/sys/unix"
)

// PollSet implements Poller with poll(2). The fd slice is rebuilt only
// when the interest set changes.
type PollSet struct {
	interest map[domain.Socket]domain.Event
	fds      []unix.PollFd
	dirty    bool
}

var _ Poller = (*PollSet)(nil)

// NewPollSet returns an empty poll set.
func NewPollSet() *PollSet {
	return &PollSet{interest: make(map[domain.Socket]domain.Event)}
}

func (p *PollSet) Register(sock domain.Socket, interest domain.Event) error {
	p.interest[sock] = interest
	p.dirty = true
	return nil
}

func (p *PollSet) Modify(sock domain.Socket, interest domain.Event) error {
	if _, ok := p.interest[sock]; !ok {
		return fmt.Errorf("modify socket %d: %w", sock, ErrNotRegistered)
	}
	p.interest[sock] = interest
	p.dirty = true
	return nil
}

func (p *PollSet) Unregister(sock domain.Socket) error {
	if _, ok := p.interest[sock]; !ok {
		return fmt.Errorf("unregister socket %d: %w", sock, ErrNotRegistered)
	}
	delete(p.interest, sock)
	p.dirty = true
	return nil
}

// Poll waits up to timeout. An interrupted wait returns no readiness and
// no error.
func (p *PollSet) Poll(timeout time.Duration) ([]Readiness, error) {
	if p.dirty {
		p.rebuild()
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	if len(p.fds) == 0 {
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return nil, nil
	}

	n, err := unix.Poll(p.fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]Readiness, 0, n)
	for _, fd := range p.fds {
		if fd.Revents == 0 {
			continue
		}
		ready = append(ready, Readiness{
			Socket: domain.Socket(fd.Fd),
			Events: fromRevents(fd.Revents),
		})
	}
	return ready, nil
}

func (p *PollSet) rebuild() {
	socks := make([]domain.Socket, 0, len(p.interest))
	for s := range p.interest {
		socks = append(socks, s)
	}
	slices.Sort(socks)

	p.fds = p.fds[:0]
	for _, s := range socks {
		p.fds = append(p.fds, unix.PollFd{Fd: int32(s), Events: toEvents(p.interest[s])})
	}
	p.dirty = false
}

func toEvents(e domain.Event) int16 {
	var ev int16
	if e&domain.EventReadable != 0 {
		ev |= unix.POLLIN
	}
	if e&domain.EventWritable != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromRevents(r int16) domain.Event {
	var e domain.Event
	if r&unix.POLLIN != 0 {
		e |= domain.EventReadable
	}
	if r&unix.POLLOUT != 0 {
		e |= domain.EventWritable
	}
	if r&unix.POLLERR != 0 {
		e |= domain.EventError
	}
	if r&unix.POLLHUP != 0 {
		e |= domain.EventHangup
	}
	if r&unix.POLLNVAL != 0 {
		e |= domain.EventInvalid
	}
	return e
}
