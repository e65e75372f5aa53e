// Package dialog implements the call state machine: the B2BUA core that
// drives a pair of correlated SIP dialogs (A-leg, B-leg) through
// IDLE -> ROUTING -> RINGING -> ANSWERED -> CONNECTED -> DISCONNECTING,
// synthesizing every outbound message from the stored leg headers. This
// is the 55% component from the system overview; every transition below
// is grounded on original_source/sip_server.c's handle_state_machine.
package dialog

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"tinysip/internal/callmap"
	"tinysip/internal/location"
	"tinysip/internal/sipmsg"
)

// Sender delivers a fully-built outbound datagram to addr. Implemented by
// internal/transport's ephemeral one-shot UDP sender.
type Sender interface {
	Send(addr callmap.Addr, data []byte) error
}

// Metrics receives terminal-disposition counters. Implemented by
// internal/status; nil-safe (the engine no-ops when unset).
type Metrics interface {
	InviteRouted()
	CallTerminal(disposition string)
}

type noopMetrics struct{}

func (noopMetrics) InviteRouted()       {}
func (noopMetrics) CallTerminal(string) {}

// Engine is the process-wide call state machine singleton, per §9's
// guidance to model the original's global mutable state as a clearly
// scoped object rather than pervasive package-level globals.
type Engine struct {
	Calls     *callmap.Map
	Locations *location.Table
	Sender    Sender
	Metrics   Metrics

	ServerIP   string
	ServerPort int

	cseq atomic.Uint64

	Log zerolog.Logger
}

// New builds an Engine. metrics may be nil.
func New(calls *callmap.Map, locations *location.Table, sender Sender, metrics Metrics, serverIP string, serverPort int, log zerolog.Logger) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Engine{
		Calls:      calls,
		Locations:  locations,
		Sender:     sender,
		Metrics:    metrics,
		ServerIP:   serverIP,
		ServerPort: serverPort,
		Log:        log,
	}
}

// nextCSeq returns the next value of the process-wide CSeq counter,
// post-increment, per §3's "Global CSeq counter". atomic because the
// source increments it unsynchronized (§5 requires a port to fix that).
func (e *Engine) nextCSeq() int {
	return int(e.cseq.Add(1))
}

func (e *Engine) send(addr callmap.Addr, data []byte, what string) {
	if err := e.Sender.Send(addr, data); err != nil {
		e.Log.Warn().Err(err).Str("what", what).Str("addr", fmt.Sprintf("%s:%d", addr.IP, addr.Port)).Msg("send failed")
	}
}

// transition fires event against the call's fsm.FSM. The switch/if guards
// above each call site already restrict the states an event fires from, so
// fsm.Event failing here means a call site's guard drifted from the fsm's
// own Events table; that is logged rather than treated as fatal to keep
// parity with the rest of the engine's one-datagram-at-a-time error style.
func (e *Engine) transition(call *callmap.Call, event string) {
	if err := call.Transition(context.Background(), event); err != nil {
		e.Log.Warn().Err(err).Int("call", call.Index).Str("event", event).Msg("call state transition rejected")
	}
}

// Handle is the entry point fed by the server's dispatcher: one parsed
// message plus its source transport address.
func (e *Engine) Handle(msg sipmsg.Message, src callmap.Addr) {
	if msg.Kind == sipmsg.KindStatus {
		// original_source/sip_server.c's process_sip_messages only
		// forwards status responses whose CSeq mentions INVITE,
		// CANCEL or BYE to the state machine; everything else
		// (e.g. a stray response to an untracked transaction) is
		// silently discarded at the dispatch boundary.
		if !(msg.CSeqMentions("INVITE") || msg.CSeqMentions("CANCEL") || msg.CSeqMentions("BYE")) {
			e.Log.Debug().Str("cseq", msg.CSeq).Msg("status with untracked CSeq method, dropped")
			return
		}
	}

	call, leg, found := e.Calls.FindByCallID(msg.CallID)
	if !found {
		if msg.Kind == sipmsg.KindRequest && msg.Method == "INVITE" {
			e.handleInitialInvite(msg, src)
			return
		}
		e.Log.Warn().Str("call_id", msg.CallID).Msg("unexpected message, may already be released")
		return
	}

	call.Lock()
	defer call.Unlock()

	switch msg.Kind {
	case sipmsg.KindStatus:
		e.handleStatus(call, leg, msg)
	case sipmsg.KindRequest:
		e.handleRequest(call, leg, msg)
	}
}

// handleInitialInvite is "(none) + REQUEST INVITE on A -> ROUTING" (§4.7).
func (e *Engine) handleInitialInvite(msg sipmsg.Message, src callmap.Addr) {
	newVia := RewriteVia(msg.Via, src.IP, src.Port)

	call := e.Calls.Allocate()
	if call == nil {
		resp := sipmsg.BuildResponse(sipmsg.Response{
			Code: 500, Reason: "Server Internal Error",
			Via: newVia, From: msg.From, To: msg.To, CSeq: msg.CSeq,
			CallID:           msg.CallID,
			ServerOriginated: true,
		})
		e.send(src, resp, "500 no free call slot")
		return
	}

	call.Lock()
	defer call.Unlock()

	call.ALegUUID = msg.CallID
	call.BLegUUID = BLegUUID(msg.CallID)
	call.ALegAddr = src
	call.ALegHeaders = callmap.LegHeaders{From: msg.From, Via: newVia, To: msg.To, CSeq: msg.CSeq}
	if contact, ok := BetweenAngles(msg.Contact); ok {
		call.ALegContact = contact
	}
	if fromURI, ok := BetweenAngles(msg.From); ok {
		call.Caller = UsernameStopAtSpaceOrAt(fromURI)
	}

	calleeURI, ok := BetweenAngles(msg.To)
	if !ok {
		e.Log.Warn().Str("to", msg.To).Msg("initial INVITE with unparseable To URI")
		e.Calls.Release(call)
		return
	}
	calleeUsername := UsernameStopAtSpaceOrAt(calleeURI)

	entry, found := e.Locations.Lookup(calleeUsername)
	if !found {
		resp := sipmsg.BuildResponse(sipmsg.Response{
			Code: 404, Reason: "Not Found",
			Via: newVia, From: msg.From, To: msg.To, CSeq: msg.CSeq,
			CallID:           call.ALegUUID,
			ServerOriginated: true,
		})
		e.send(src, resp, "404 callee not found")
		e.Calls.Release(call)
		return
	}

	call.Callee = calleeUsername
	call.BLegAddr = callmap.Addr{IP: entry.IP, Port: entry.Port}
	call.ALegMedia.RemoteMedia = true
	call.BLegMedia.LocalMedia = true

	trying := sipmsg.BuildResponse(sipmsg.Response{
		Code: 100, Reason: "Trying",
		Via: newVia, From: msg.From, To: msg.To, CSeq: msg.CSeq,
		CallID:           call.ALegUUID,
		ServerOriginated: true,
	})
	e.send(src, trying, "100 Trying to A")

	bVia := fmt.Sprintf("Via: SIP/2.0/UDP %s:%d;branch=%s", e.ServerIP, e.ServerPort, initialInviteBranch())
	bCSeq := fmt.Sprintf("CSeq: %d INVITE", e.nextCSeq())
	bFrom := msg.From // verbatim copy, no new tag minted (§9, §10)
	bTo := fmt.Sprintf("To: <sip:%s@%s:%d;ob>", calleeUsername, entry.IP, entry.Port)
	call.BLegHeaders = callmap.LegHeaders{From: bFrom, Via: bVia, To: bTo, CSeq: bCSeq}

	requestURI := fmt.Sprintf("sip:%s@%s:%d", calleeUsername, entry.IP, entry.Port)
	inviteToB := sipmsg.BuildRequest(sipmsg.Request{
		Method: "INVITE", RequestURI: requestURI,
		Via: bVia, From: bFrom, To: bTo, CSeq: bCSeq,
		CallID:      call.BLegUUID,
		Contact:     sipmsg.ContactHeader(e.ServerIP, e.ServerPort),
		MaxForwards: msg.MaxForwards,
		Body:        msg.Body,
	})
	e.send(call.BLegAddr, inviteToB, "INVITE to B")

	e.transition(call, callmap.EventRoute)
	e.Metrics.InviteRouted()
}

func (e *Engine) handleStatus(call *callmap.Call, leg callmap.Leg, msg sipmsg.Message) {
	switch call.State() {
	case callmap.ROUTING, callmap.RINGING:
		e.handleRoutingOrRingingStatus(call, msg)
	case callmap.DISCONNECTING:
		if msg.StatusCode == 200 && (msg.CSeqMentions("BYE") || msg.CSeqMentions("CANCEL")) {
			e.release(call, "normal")
			return
		}
		e.Log.Warn().Int("code", msg.StatusCode).Str("state", call.State().String()).Msg("unexpected status in DISCONNECTING")
	default:
		e.Log.Warn().Int("code", msg.StatusCode).Str("state", call.State().String()).Int("leg", int(leg)).Msg("unexpected status")
	}
}

func (e *Engine) handleRoutingOrRingingStatus(call *callmap.Call, msg sipmsg.Message) {
	switch {
	case msg.StatusCode == 183:
		e.forwardProgress(call, msg, 183, "Session Progress")
	case msg.StatusCode == 180:
		e.forwardProgress(call, msg, 180, "Ringing")
		e.transition(call, callmap.EventRing)
	case msg.StatusCode == 200:
		e.handleBLegAnswer(call, msg)
	case msg.StatusCode >= 400 && msg.StatusCode < 700:
		e.handleBLegFailure(call, msg)
	case msg.StatusCode >= 100 && msg.StatusCode < 200:
		e.Log.Debug().Int("code", msg.StatusCode).Msg("other 1xx from B, no action")
	default:
		e.Log.Warn().Int("code", msg.StatusCode).Msg("unrecognized status from B in ROUTING/RINGING")
	}
}

// forwardProgress implements the 183/180 transitions: forward the
// provisional response to A verbatim-echoed, with the B-leg body when
// present (§4.7).
func (e *Engine) forwardProgress(call *callmap.Call, msg sipmsg.Message, code int, reason string) {
	if msg.HasSDP {
		call.ALegMedia.LocalMedia = true
		call.BLegMedia.RemoteMedia = true
	}
	resp := sipmsg.BuildResponse(sipmsg.Response{
		Code: code, Reason: reason,
		Via: call.ALegHeaders.Via, From: call.ALegHeaders.From, To: call.ALegHeaders.To, CSeq: call.ALegHeaders.CSeq,
		CallID:           call.ALegUUID,
		ServerOriginated: true,
		Contact:          sipmsg.ContactHeader(e.ServerIP, e.ServerPort),
		Body:             msg.Body,
	})
	e.send(call.ALegAddr, resp, fmt.Sprintf("%d to A", code))
}

// handleBLegAnswer is "STATUS 2xx on B -> ANSWERED" (§4.7).
func (e *Engine) handleBLegAnswer(call *callmap.Call, msg sipmsg.Message) {
	if contact, ok := BetweenAngles(msg.Contact); ok {
		call.BLegContact = contact
	}
	if msg.HasSDP {
		call.ALegMedia.LocalMedia = true
		call.BLegMedia.RemoteMedia = true
	}
	resp := sipmsg.BuildResponse(sipmsg.Response{
		Code: 200, Reason: "OK",
		Via: call.ALegHeaders.Via, From: call.ALegHeaders.From, To: call.ALegHeaders.To, CSeq: call.ALegHeaders.CSeq,
		CallID:           call.ALegUUID,
		ServerOriginated: true,
		Contact:          sipmsg.ContactHeader(e.ServerIP, e.ServerPort),
		Body:             msg.Body,
	})
	e.send(call.ALegAddr, resp, "200 OK to A")
	e.transition(call, callmap.EventAnswer)
}

// handleBLegFailure is "STATUS 4xx/5xx/6xx on B -> IDLE (release)" (§4.7).
func (e *Engine) handleBLegFailure(call *callmap.Call, msg sipmsg.Message) {
	ackCSeq := fmt.Sprintf("CSeq: %d ACK", msg.CSeqNumber)
	ack := sipmsg.BuildRequest(sipmsg.Request{
		Method: "ACK", RequestURI: fmt.Sprintf("sip:%s@%s:%d", call.Callee, call.BLegAddr.IP, call.BLegAddr.Port),
		Via: call.BLegHeaders.Via, From: call.BLegHeaders.From, To: call.BLegHeaders.To, CSeq: ackCSeq,
		CallID:      call.BLegUUID,
		MaxForwards: 70,
	})
	e.send(call.BLegAddr, ack, "ACK to B (failure release)")

	resp := sipmsg.BuildResponse(sipmsg.Response{
		Code: msg.StatusCode, Reason: statusReason(msg.StatusCode),
		Via: call.ALegHeaders.Via, From: call.ALegHeaders.From, To: call.ALegHeaders.To, CSeq: call.ALegHeaders.CSeq,
		CallID:           call.ALegUUID,
		ServerOriginated: true,
	})
	e.send(call.ALegAddr, resp, fmt.Sprintf("%d to A (failure release)", msg.StatusCode))

	e.release(call, "failed")
}

func (e *Engine) handleRequest(call *callmap.Call, leg callmap.Leg, msg sipmsg.Message) {
	switch call.State() {
	case callmap.ROUTING, callmap.RINGING:
		if msg.Method == "CANCEL" && leg == callmap.LegA {
			e.handleCancel(call, msg)
			return
		}
	case callmap.ANSWERED:
		if msg.Method == "ACK" && leg == callmap.LegA {
			e.handleAckConnects(call, msg)
			return
		}
		if msg.Method == "CANCEL" && leg == callmap.LegA {
			e.Log.Warn().Int("call", call.Index).Msg("CANCEL from A in ANSWERED: release-both-legs not implemented, ignored")
			return
		}
		if msg.Method == "BYE" && leg == callmap.LegB {
			e.Log.Warn().Int("call", call.Index).Msg("BYE from B in ANSWERED: release-both-legs not implemented, ignored")
			return
		}
	case callmap.CONNECTED:
		if msg.Method == "BYE" {
			e.handleBye(call, leg, msg)
			return
		}
	}
	e.Log.Warn().Str("method", msg.Method).Str("state", call.State().String()).Int("leg", int(leg)).Msg("unexpected request")
}

// handleCancel is "ROUTING|RINGING + REQUEST CANCEL on A -> DISCONNECTING".
func (e *Engine) handleCancel(call *callmap.Call, msg sipmsg.Message) {
	okToCancel := sipmsg.BuildResponse(sipmsg.Response{
		Code: 200, Reason: "OK",
		Via: msg.Via, From: msg.From, To: msg.To, CSeq: msg.CSeq,
		CallID:           msg.CallID,
		ServerOriginated: true,
	})
	e.send(call.ALegAddr, okToCancel, "200 OK to CANCEL")

	terminated := sipmsg.BuildResponse(sipmsg.Response{
		Code: 487, Reason: "Request Terminated",
		Via: call.ALegHeaders.Via, From: call.ALegHeaders.From, To: call.ALegHeaders.To, CSeq: call.ALegHeaders.CSeq,
		CallID:           call.ALegUUID,
		ServerOriginated: true,
	})
	e.send(call.ALegAddr, terminated, "487 to A")

	bCSeq := fmt.Sprintf("CSeq: %d CANCEL", extractBLegCSeqNumber(call.BLegHeaders.CSeq))
	cancelToB := sipmsg.BuildRequest(sipmsg.Request{
		Method: "CANCEL", RequestURI: fmt.Sprintf("sip:%s@%s:%d", call.Callee, call.BLegAddr.IP, call.BLegAddr.Port),
		Via: call.BLegHeaders.Via, From: call.BLegHeaders.From, To: call.BLegHeaders.To, CSeq: bCSeq,
		CallID:      call.BLegUUID,
		MaxForwards: msg.MaxForwards,
	})
	e.send(call.BLegAddr, cancelToB, "CANCEL to B")

	e.transition(call, callmap.EventDisconnect)
}

// handleAckConnects is "ANSWERED + REQUEST ACK on A -> CONNECTED".
func (e *Engine) handleAckConnects(call *callmap.Call, msg sipmsg.Message) {
	freshVia := fmt.Sprintf("Via: SIP/2.0/UDP %s:%d;branch=%s", e.ServerIP, e.ServerPort, newBranch())
	ackCSeq := fmt.Sprintf("CSeq: %d ACK", extractBLegCSeqNumber(call.BLegHeaders.CSeq))
	ack := sipmsg.BuildRequest(sipmsg.Request{
		Method: "ACK", RequestURI: fmt.Sprintf("sip:%s@%s:%d", call.Callee, call.BLegAddr.IP, call.BLegAddr.Port),
		Via: freshVia, From: call.BLegHeaders.From, To: call.BLegHeaders.To, CSeq: ackCSeq,
		CallID:      call.BLegUUID,
		MaxForwards: msg.MaxForwards,
	})
	e.send(call.BLegAddr, ack, "ACK to B (connect)")
	e.transition(call, callmap.EventConnect)
}

// handleBye is "CONNECTED + REQUEST BYE on either -> DISCONNECTING".
func (e *Engine) handleBye(call *callmap.Call, leg callmap.Leg, msg sipmsg.Message) {
	senderAddr := call.ALegAddr
	if leg == callmap.LegB {
		senderAddr = call.BLegAddr
	}
	okToBye := sipmsg.BuildResponse(sipmsg.Response{
		Code: 200, Reason: "OK",
		Via: msg.Via, From: msg.From, To: msg.To, CSeq: msg.CSeq,
		CallID: msg.CallID,
	})
	e.send(senderAddr, okToBye, "200 OK to BYE sender")

	if leg == callmap.LegA {
		bVia := fmt.Sprintf("Via: SIP/2.0/UDP %s:%d;branch=%s", e.ServerIP, e.ServerPort, newBranch())
		call.BLegHeaders.Via = bVia
		byeToB := sipmsg.BuildRequest(sipmsg.Request{
			Method: "BYE", RequestURI: fmt.Sprintf("sip:%s@%s:%d", call.Callee, call.BLegAddr.IP, call.BLegAddr.Port),
			Via: bVia, From: call.BLegHeaders.From, To: call.BLegHeaders.To,
			CSeq:   fmt.Sprintf("CSeq: %d BYE", e.nextCSeq()),
			CallID: call.BLegUUID,
		})
		e.send(call.BLegAddr, byeToB, "BYE to B")
	} else {
		aVia := fmt.Sprintf("Via: SIP/2.0/UDP %s:%d;branch=%s", e.ServerIP, e.ServerPort, newBranch())
		call.ALegHeaders.Via = aVia
		// A-leg From and To swapped: the dialog's other leg now sees
		// itself addressed in the From it originally saw in To, and
		// vice versa (§4.7).
		swappedFrom := "From: " + stripHeaderName(call.ALegHeaders.To, "To: ")
		swappedTo := "To: " + stripHeaderName(call.ALegHeaders.From, "From: ")
		byeToA := sipmsg.BuildRequest(sipmsg.Request{
			Method: "BYE", RequestURI: call.ALegContact,
			Via: aVia, From: swappedFrom, To: swappedTo,
			CSeq:   fmt.Sprintf("CSeq: %d BYE", e.nextCSeq()),
			CallID: call.ALegUUID,
		})
		e.send(call.ALegAddr, byeToA, "BYE to A")
	}

	e.transition(call, callmap.EventDisconnect)
}

func stripHeaderName(line, prefix string) string {
	if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
		return line[len(prefix):]
	}
	return line
}

func (e *Engine) release(call *callmap.Call, disposition string) {
	e.Calls.Release(call)
	e.Metrics.CallTerminal(disposition)
}

// extractBLegCSeqNumber pulls the numeric CSeq out of a stored "CSeq: N
// METHOD" line using the same digit-run algorithm as the lexer.
func extractBLegCSeqNumber(cseqLine string) int {
	return sipmsg.ExtractCSeqNumber(cseqLine)
}

func statusReason(code int) string {
	switch code {
	case 486:
		return "Busy Here"
	case 487:
		return "Request Terminated"
	case 500:
		return "Server Internal Error"
	case 503:
		return "Service Unavailable"
	case 603:
		return "Decline"
	default:
		return "Error"
	}
}
