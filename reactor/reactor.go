// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reactor is an epoll-backed I/O readiness multiplexer.
//
// It is the teacher's non-blocking read/write-with-retry idiom
// (framer.framer.readOnce/writeOnce: try the syscall, and on
// EAGAIN/EWOULDBLOCK surface that as a control-flow signal rather than
// blocking) generalized from one stream to many: instead of one framer
// instance retrying its own fd, a Reactor drives epoll_wait over every
// registered fd and invokes each one's callback only once it is
// actually readable/writable, so the caller's own read/write call is
// the one that would have returned ErrWouldBlock never gets made.
//
// A Reactor is confined to the goroutine that calls Wait (spec.md §5);
// callers that want concurrent fan-out run one Reactor per goroutine
// instead of sharing one across goroutines. Register and Deregister
// may be called from other goroutines (they only touch a mutex-guarded
// map plus one EpollCtl syscall) so a connection can be added to a
// reactor's interest set while that reactor's Wait is blocked in
// another goroutine, by pairing the call with Wake.
package reactor

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tarantool-go/tntgo/tnterr"
)

// Interest is a bitmask of the readiness conditions a registration
// cares about.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) toEpollEvents() uint32 {
	var ev uint32
	if i&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Events reports which conditions fired for a registration after a
// Wait pass. Error and Hup are always delivered regardless of the
// registration's Interest, mirroring epoll's own EPOLLERR/EPOLLHUP
// behavior (they cannot be masked out).
type Events struct {
	Readable bool
	Writable bool
	Error    bool
	Hup      bool
}

// Handle is the token returned by Register; pass it to Modify or
// Deregister.
type Handle struct {
	fd int
	r  *Reactor
}

type registration struct {
	fd       int
	interest Interest
	cb       func(Events)
}

// Reactor multiplexes readiness over a set of registered file
// descriptors using epoll. The zero value is not usable; construct one
// with New.
type Reactor struct {
	epfd int

	mu   sync.Mutex
	regs map[int]*registration

	wakeR *os.File
	wakeW *os.File

	scratch []unix.EpollEvent

	closed bool
}

// New creates an empty Reactor backed by a fresh epoll instance.
func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: epoll_create1: %v", tnterr.ErrIO, err)
	}
	wakeR, wakeW, err := os.Pipe()
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("%w: wake pipe: %v", tnterr.ErrIO, err)
	}
	if err := unix.SetNonblock(int(wakeR.Fd()), true); err != nil {
		_ = unix.Close(epfd)
		_ = wakeR.Close()
		_ = wakeW.Close()
		return nil, fmt.Errorf("%w: set wake pipe nonblocking: %v", tnterr.ErrIO, err)
	}

	r := &Reactor{
		epfd:    epfd,
		regs:    make(map[int]*registration),
		wakeR:   wakeR,
		wakeW:   wakeW,
		scratch: make([]unix.EpollEvent, 64),
	}
	wakeFd := int(wakeR.Fd())
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &event); err != nil {
		_ = unix.Close(epfd)
		_ = wakeR.Close()
		_ = wakeW.Close()
		return nil, fmt.Errorf("%w: epoll_ctl(wake): %v", tnterr.ErrIO, err)
	}
	r.regs[wakeFd] = &registration{fd: wakeFd, interest: Readable, cb: r.drainWake}
	return r, nil
}

func (r *Reactor) drainWake(Events) {
	var buf [64]byte
	for {
		_, err := unix.Read(int(r.wakeR.Fd()), buf[:])
		if err != nil {
			return
		}
	}
}

// Wake interrupts a Wait blocked in another goroutine, e.g. after
// Register adds a new fd of interest. Safe to call concurrently and
// from the Reactor's own goroutine.
func (r *Reactor) Wake() {
	_, _ = r.wakeW.Write([]byte{0})
}

// Register adds conn's underlying file descriptor to the reactor's
// interest set. cb is invoked from within Wait, on the Reactor's
// goroutine, whenever one of the requested conditions is observed.
func (r *Reactor) Register(conn syscall.Conn, interest Interest, cb func(Events)) (*Handle, error) {
	fd, err := rawFD(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: obtaining raw fd: %v", tnterr.ErrIO, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("%w: set nonblocking: %v", tnterr.ErrIO, err)
	}

	reg := &registration{fd: fd, interest: interest, cb: cb}
	event := unix.EpollEvent{Events: interest.toEpollEvents(), Fd: int32(fd)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: reactor is closed", tnterr.ErrClosed)
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return nil, fmt.Errorf("%w: epoll_ctl(add): %v", tnterr.ErrIO, err)
	}
	r.regs[fd] = reg
	return &Handle{fd: fd, r: r}, nil
}

// Modify changes the interest set for an existing registration.
func (h *Handle) Modify(interest Interest) error {
	r := h.r
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[h.fd]
	if !ok {
		return fmt.Errorf("%w: handle already deregistered", tnterr.ErrIO)
	}
	event := unix.EpollEvent{Events: interest.toEpollEvents(), Fd: int32(h.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, h.fd, &event); err != nil {
		return fmt.Errorf("%w: epoll_ctl(mod): %v", tnterr.ErrIO, err)
	}
	reg.interest = interest
	return nil
}

// Deregister removes the handle from the reactor. It does not close
// the underlying file descriptor; the caller owns that lifecycle.
func (h *Handle) Deregister() error {
	r := h.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[h.fd]; !ok {
		return nil
	}
	delete(r.regs, h.fd)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, h.fd, nil); err != nil {
		if err != unix.ENOENT && err != unix.EBADF {
			return fmt.Errorf("%w: epoll_ctl(del): %v", tnterr.ErrIO, err)
		}
	}
	return nil
}

// Wait blocks for at most timeout for any registered fd to become
// ready (timeout < 0 blocks indefinitely, timeout == 0 polls without
// blocking), dispatches every ready registration's callback, and
// returns the number of fds that had events. It is safe to call Wait
// again immediately after a zero-event, nil-error return; that is the
// normal "nothing ready yet" outcome, not a failure.
func (r *Reactor) Wait(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(r.epfd, r.scratch, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: epoll_wait: %v", tnterr.ErrIO, err)
	}

	fired := 0
	r.mu.Lock()
	callbacks := make([]func(Events), 0, n)
	argsList := make([]Events, 0, n)
	for i := 0; i < n; i++ {
		ev := r.scratch[i]
		reg, ok := r.regs[int(ev.Fd)]
		if !ok {
			continue
		}
		e := Events{
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Error:    ev.Events&unix.EPOLLERR != 0,
			Hup:      ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		}
		callbacks = append(callbacks, reg.cb)
		argsList = append(argsList, e)
		fired++
	}
	r.mu.Unlock()

	// Callbacks run outside the lock: a callback is free to Register
	// or Deregister other fds on this same reactor without deadlocking.
	for i, cb := range callbacks {
		cb(argsList[i])
	}
	return fired, nil
}

// Close releases the epoll instance and the internal wake pipe. It
// does not close any registered connection's file descriptor.
func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.wakeR.Close()
	_ = r.wakeW.Close()
	return unix.Close(r.epfd)
}

// RawFD extracts the file descriptor behind a syscall.Conn (typically
// a *net.TCPConn or *net.UnixConn). conn and client use this to hand
// raw fds to both Reactor.Register and their own non-blocking
// read/write syscalls, since net.Conn's own Read/Write go through the
// Go runtime's netpoller and would fight a second, user-space epoll
// loop over the same fd.
func RawFD(conn syscall.Conn) (int, error) { return rawFD(conn) }

func rawFD(conn syscall.Conn) (int, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctrlErr := rc.Control(func(fdu uintptr) { fd = int(fdu) })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}
