package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tinysip/internal/callmap"
	"tinysip/internal/queue"
)

func TestListenerEnqueuesReceivedDatagrams(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a test address: %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()

	q := queue.New(queue.DefaultCapacity)
	l := &Listener{Addr: addr, Queue: q, Log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = l.Run(ctx)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	received := make(chan queue.Item, 1)
	go func() {
		_ = queue.Run(ctx, q, 1, zerolog.Nop(), func(item queue.Item) {
			select {
			case received <- item:
			default:
			}
		})
	}()

	client, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer client.Close()
	if _, err := client.Write([]byte("REGISTER sip:1001 SIP/2.0\r\n\r\n")); err != nil {
		t.Fatalf("failed to write test datagram: %v", err)
	}

	select {
	case item := <-received:
		if len(item.Data) == 0 {
			t.Fatalf("expected non-empty datagram")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the listener to enqueue the datagram")
	}
}

func TestSenderRoundTrip(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer conn.Close()
	udpAddr := conn.LocalAddr().(*net.UDPAddr)

	var sender Sender
	if err := sender.Send(callmap.Addr{IP: "127.0.0.1", Port: udpAddr.Port}, []byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	buf := make([]byte, 16)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected to receive the sent datagram: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want %q", buf[:n], "ping")
	}
}
