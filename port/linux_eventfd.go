//go:build linux

package port

import (
	"sync/atomic"
	"time"

	"github.com/biaboi/Kora/sched"
	"golang.org/x/sys/unix"
)

// EventfdPort is a Linux-specific Port backed by an eventfd and epoll,
// grounded on the example pack's eventfd wakeup (createWakeFd/
// drainWakeUpPipe) and epoll poller (FastPoller) patterns. Ticks are
// driven by an epoll_wait timeout rather than a Go timer, and Wake
// writes to the eventfd to return from epoll_wait immediately —
// closer to how a real target's SysTick ISR races against an external
// interrupt line than a channel-based ticker is.
type EventfdPort struct {
	epfd, wakeFd int32
	st           atomic.Uint32
}

// NewEventfdPort creates an EventfdPort. Callers must call Close once
// the port's Run loop has returned.
func NewEventfdPort() (*EventfdPort, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: wakeFd}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, int(wakeFd), ev); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(int(wakeFd))
		return nil, err
	}
	return &EventfdPort{epfd: int32(epfd), wakeFd: int32(wakeFd)}, nil
}

// Close releases the port's epoll and eventfd descriptors.
func (p *EventfdPort) Close() error {
	_ = unix.Close(int(p.wakeFd))
	return unix.Close(int(p.epfd))
}

func (p *EventfdPort) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(int(p.wakeFd), buf[:]); err != nil {
			return
		}
	}
}

func (p *EventfdPort) Run(k *sched.Kernel, rate int, stop <-chan struct{}) {
	if rate <= 0 {
		rate = 1000
	}
	if !p.st.CompareAndSwap(uint32(stateAwake), uint32(stateRunning)) {
		return
	}
	defer p.st.Store(uint32(stateStopped))

	intervalMs := int(time.Second/time.Duration(rate)) / int(time.Millisecond)
	if intervalMs <= 0 {
		intervalMs = 1
	}

	events := make([]unix.EpollEvent, 4)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := unix.EpollWait(int(p.epfd), events, intervalMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n == 0 {
			k.TickHandler()
			continue
		}
		for i := 0; i < n; i++ {
			if events[i].Fd == p.wakeFd {
				p.drainWake()
				k.TickHandler()
			}
		}
	}
}

// Wake writes to the eventfd, waking Run's epoll_wait immediately so
// it delivers a tick without waiting out the current interval.
func (p *EventfdPort) Wake() {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(int(p.wakeFd), buf[:])
}
