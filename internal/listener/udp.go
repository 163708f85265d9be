// Package listener runs concurrent UDP datagram servers and dispatches raw
// bytes to a registered handler on a bounded worker pool, following the
// teacher's goroutine + cooperative-shutdown pattern (cmd/gateway/main.go)
// generalized from an HTTP server's ListenAndServe/Shutdown pair to a UDP
// accept loop with an explicit stop channel.
package listener

import (
	"context"
	"fmt"
	"net"
	"sync"

	"netedge-siem/pkg/logger"
)

// maxDatagramSize accepts datagrams up to 64 KiB (spec §4.1).
const maxDatagramSize = 65536

// Handler processes one received datagram. It must not block the receive
// loop; UDPListener dispatches each call onto a bounded worker pool.
type Handler func(ctx context.Context, data []byte, from *net.UDPAddr)

// UDPListener is an idempotent start/stop datagram server.
type UDPListener struct {
	name    string
	addr    string
	handler Handler
	log     logger.Logger

	conn    *net.UDPConn
	workers chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// New creates a listener named name bound to addr (e.g. ":514") dispatching
// to handler, with workerPoolSize bounding concurrent handler invocations.
func New(name, addr string, workerPoolSize int, handler Handler, log logger.Logger) *UDPListener {
	if workerPoolSize <= 0 {
		workerPoolSize = 32
	}
	return &UDPListener{
		name:    name,
		addr:    addr,
		handler: handler,
		log:     log,
		workers: make(chan struct{}, workerPoolSize),
	}
}

// Start binds the UDP socket and runs the accept loop in a background
// goroutine. Calling Start twice on an already-running listener is a no-op.
func (l *UDPListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return fmt.Errorf("%s: resolve addr: %w", l.name, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("%s: listen: %w", l.name, err)
	}
	conn.SetReadBuffer(maxDatagramSize)

	l.conn = conn
	l.stop = make(chan struct{})
	l.running = true

	l.wg.Add(1)
	go l.acceptLoop(ctx)

	l.log.Info("udp listener started", "name", l.name, "addr", l.addr)
	return nil
}

func (l *UDPListener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.stop:
				return
			default:
			}
			l.log.Warn("udp read error", "name", l.name, "error", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		l.workers <- struct{}{}
		l.wg.Add(1)
		go func(data []byte, from *net.UDPAddr) {
			defer l.wg.Done()
			defer func() { <-l.workers }()
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("udp handler panic", "name", l.name, "recovered", r)
				}
			}()
			l.handler(ctx, data, from)
		}(data, from)
	}
}

// Stop closes the socket and waits for in-flight handlers to complete.
// Idempotent: calling Stop on a non-running listener is a no-op.
func (l *UDPListener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stop)
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	l.wg.Wait()
	l.log.Info("udp listener stopped", "name", l.name)
}
