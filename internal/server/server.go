// Package server wires transport, the inbound queue, the lexer, the
// registrar and the dialog engine into a running B2BUA, mirroring the
// teacher's SIPServer.Run (one listener goroutine, one worker pool,
// errgroup-coordinated shutdown).
package server

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tinysip/internal/callmap"
	"tinysip/internal/dialog"
	"tinysip/internal/location"
	"tinysip/internal/queue"
	"tinysip/internal/sipmsg"
	"tinysip/internal/transport"
)

// RegisterMetrics records REGISTER outcomes. Implemented by
// internal/status; nil-safe.
type RegisterMetrics interface {
	RegisterOutcome(outcome string)
}

// Server owns the listener, the worker pool, and the dispatch between
// REGISTER (handled directly by the registrar) and everything else
// (handed to the dialog engine), per original_source/sip_server.c's
// process_sip_messages, which special-cases REGISTER before the state
// machine ever sees a message.
type Server struct {
	Addr      string
	Workers   int
	Queue     *queue.Queue
	Registrar *location.Registrar
	Engine    *dialog.Engine
	Sender    transport.Sender
	Metrics   RegisterMetrics
	Log       zerolog.Logger
}

// New builds a Server ready to Run. metrics may be nil.
func New(addr string, workers, queueCapacity int, registrar *location.Registrar, engine *dialog.Engine, metrics RegisterMetrics, log zerolog.Logger) *Server {
	return &Server{
		Addr:      addr,
		Workers:   workers,
		Queue:     queue.New(queueCapacity),
		Registrar: registrar,
		Engine:    engine,
		Sender:    transport.Sender{},
		Metrics:   metrics,
		Log:       log,
	}
}

// Run starts the UDP listener and the worker pool and blocks until ctx is
// cancelled or either one errors.
func (s *Server) Run(ctx context.Context) error {
	listener := &transport.Listener{Addr: s.Addr, Queue: s.Queue, Log: s.Log}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(gCtx)
	})
	g.Go(func() error {
		return queue.Run(gCtx, s.Queue, s.Workers, s.Log, s.dispatch)
	})

	s.Log.Info().Str("addr", s.Addr).Int("workers", s.Workers).Msg("tinysip listening")
	return g.Wait()
}

// dispatch parses one queued datagram and routes it to the registrar or
// the dialog engine. Parse failures are dropped silently per §4.3. Every
// datagram is tagged with a short trace id so concurrent workers'
// interleaved log lines can be told apart; this is pure observability and
// never affects wire behavior.
func (s *Server) dispatch(item queue.Item) {
	trace := s.Log.With().Str("trace_id", uuid.NewString()).Logger()

	msg, ok := sipmsg.Parse(item.Data)
	if !ok {
		trace.Debug().Str("source", item.SourceIP).Msg("unparseable datagram, dropped")
		return
	}
	src := callmap.Addr{IP: item.SourceIP, Port: item.SourcePort}
	trace.Debug().Str("method_or_status", methodOrStatus(msg)).Str("call_id", msg.CallID).Msg("dispatching")

	if msg.Kind == sipmsg.KindRequest && msg.Method == "REGISTER" {
		resp, outcome := s.Registrar.HandleRegister(msg, src)
		if s.Metrics != nil {
			s.Metrics.RegisterOutcome(outcome)
		}
		if err := s.Sender.Send(src, resp); err != nil {
			trace.Warn().Err(err).Str("source", item.SourceIP).Msg("REGISTER response send failed")
		}
		return
	}

	s.Engine.Handle(msg, src)
}

func methodOrStatus(msg sipmsg.Message) string {
	if msg.Kind == sipmsg.KindStatus {
		return msg.CSeq
	}
	return msg.Method
}
