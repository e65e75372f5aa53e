// Package transport owns the single UDP listener and the one-shot
// ephemeral sender, per §4.1 and §5's "each outbound send opens a fresh
// UDP socket, sends, closes" rule — a deliberate departure from the
// teacher (zurustar-xylitol3/internal/sip/transport.go), which reuses one
// shared net.PacketConn for every send; the spec's C original always dials
// a fresh socket per message (see original_source/network_utils.c's
// send_sip_message), and that per-send-socket behavior is preserved here.
package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"tinysip/internal/callmap"
	"tinysip/internal/queue"
)

// MaxDatagramSize matches original_source/sip_server.h's BUFFER_SIZE.
const MaxDatagramSize = 1400

// Listener binds one UDP endpoint and feeds every received datagram into
// a queue for the worker pool to drain.
type Listener struct {
	Addr  string
	Queue *queue.Queue
	Log   zerolog.Logger
}

// Run blocks reading datagrams until ctx is cancelled; it returns early
// only if the socket cannot be bound. Receive errors are logged and the
// loop continues with the next datagram. Empty datagrams are skipped
// here; malformed ones are not filtered here but dropped downstream at
// Parse (§4.1: "Malformed/empty datagrams are dropped silently").
func (l *Listener) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", l.Addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", l.Addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			l.Log.Warn().Err(err).Msg("udp receive error, continuing")
			continue
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		host, port := splitHostPort(addr)
		if !l.Queue.Enqueue(queue.Item{Data: data, SourceIP: host, SourcePort: port}) {
			l.Log.Warn().Str("source", addr.String()).Msg("queue full, datagram dropped")
		}
	}
}

func splitHostPort(addr net.Addr) (string, int) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return addr.String(), 0
	}
	return udpAddr.IP.String(), udpAddr.Port
}

// Sender implements dialog.Sender: every Send dials a fresh ephemeral UDP
// socket, writes once, and closes it.
type Sender struct{}

// Send opens a new UDP socket to addr, writes data, and closes it.
func (Sender) Send(addr callmap.Addr, data []byte) error {
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", addr.IP, addr.Port))
	if err != nil {
		return fmt.Errorf("dial udp %s:%d: %w", addr.IP, addr.Port, err)
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write udp %s:%d: %w", addr.IP, addr.Port, err)
	}
	return nil
}
