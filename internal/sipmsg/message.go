// Package sipmsg implements the SIP lexer and builder described in spec
// §4.3 and §4.8: a textual, substring-based field extractor (deliberately
// not an RFC-complete parser) and a pure string formatter for outbound
// messages. Grounded on original_source/sip_server.c's handle_state_machine
// and handle_register, which locate every header by strstr rather than by
// building a header map.
package sipmsg

import (
	"bytes"
	"strconv"
	"strings"
)

// Kind distinguishes a request from a status response.
type Kind int

const (
	KindUnknown Kind = iota
	KindRequest
	KindStatus
)

// DefaultMaxForwards mirrors original_source/sip_server.c's default of 70
// when no Max-Forwards header is present.
const DefaultMaxForwards = 70

// Message is the result of Parse: every field the dialog engine consumes,
// extracted by textual search rather than structured parsing.
type Message struct {
	Kind       Kind
	Method     string // set when Kind == KindRequest
	StatusCode int    // set when Kind == KindStatus

	CallID string // bare value, no header-name prefix

	Via     string // verbatim "Via: ..." line
	From    string // verbatim "From: ..." line
	To      string // verbatim "To: ..." line
	CSeq    string // verbatim "CSeq: ..." line
	Contact string // verbatim "Contact: ..." line, may be empty

	CSeqNumber  int
	MaxForwards int // decremented once if >0, per §4.3

	HasSDP bool
	// Body is the verbatim suffix of the message starting at its
	// "Content-Type: application/sdp" line, through the end of the
	// buffer (headers, blank line, and SDP payload all included). Nil
	// when HasSDP is false.
	Body []byte
}

const crlf = "\r\n"

// Parse extracts the fields the state machine needs from a raw datagram.
// It returns ok=false when the buffer has no CRLF-terminated first line or
// an unrecognized first line, per §4.3's "parse failures... discarded".
func Parse(raw []byte) (Message, bool) {
	firstLineEnd := bytes.Index(raw, []byte(crlf))
	if firstLineEnd <= 0 {
		return Message{}, false
	}
	firstLine := raw[:firstLineEnd]

	msg := Message{}
	if bytes.HasPrefix(firstLine, []byte("SIP/2.0 ")) {
		fields := bytes.Fields(firstLine)
		if len(fields) < 2 {
			return Message{}, false
		}
		code, err := strconv.Atoi(string(fields[1]))
		if err != nil {
			return Message{}, false
		}
		msg.Kind = KindStatus
		msg.StatusCode = code
	} else {
		fields := bytes.Fields(firstLine)
		if len(fields) < 3 {
			return Message{}, false
		}
		msg.Kind = KindRequest
		msg.Method = string(fields[0])
	}

	if line, ok := captureLine(raw, "Call-ID: "); ok {
		msg.CallID = line[len("Call-ID: "):]
	}
	if line, ok := captureLine(raw, "Via: "); ok {
		msg.Via = "Via: " + line[len("Via: "):]
	}
	if line, ok := captureLine(raw, "From: "); ok {
		msg.From = "From: " + line[len("From: "):]
	}
	if line, ok := captureLine(raw, "To: "); ok {
		msg.To = "To: " + line[len("To: "):]
	}
	if line, ok := captureLine(raw, "CSeq: "); ok {
		msg.CSeq = "CSeq: " + line[len("CSeq: "):]
		msg.CSeqNumber = ExtractCSeqNumber(msg.CSeq)
	} else {
		msg.CSeqNumber = 1
	}
	if line, ok := captureLine(raw, "Contact: "); ok {
		msg.Contact = "Contact: " + line[len("Contact: "):]
	}

	msg.MaxForwards = DefaultMaxForwards
	if line, ok := captureLine(raw, "Max-Forwards: "); ok {
		if n, err := strconv.Atoi(line[len("Max-Forwards: "):]); err == nil {
			msg.MaxForwards = n
		}
	}
	if msg.MaxForwards > 0 {
		msg.MaxForwards--
	}

	if idx := bytes.Index(raw, []byte("Content-Type: application/sdp")); idx >= 0 {
		msg.HasSDP = true
		msg.Body = append([]byte(nil), raw[idx:]...)
	}

	return msg, true
}

// captureLine returns the line starting at the first occurrence of prefix
// and ending before the next CRLF, without the CRLF. It returns ok=false
// if prefix is not found, so missing optional headers are simply absent
// rather than an error (§4.3's "tolerant of missing optional headers").
// The returned string still carries prefix, hence callers strip it below.
func captureLine(raw []byte, prefix string) (string, bool) {
	idx := bytes.Index(raw, []byte(prefix))
	if idx < 0 {
		return "", false
	}
	rest := raw[idx:]
	end := bytes.Index(rest, []byte(crlf))
	if end < 0 {
		end = len(rest)
	}
	return string(rest[:end]), true
}

// CSeqMentions reports whether the captured CSeq line contains method,
// e.g. "CSeq: 1 INVITE" mentions "INVITE". Used by the dispatcher to drop
// stray status responses whose CSeq method the call isn't waiting on, and
// by the DISCONNECTING transition to recognize a BYE/CANCEL 200 OK.
func (m Message) CSeqMentions(method string) bool {
	return strings.Contains(m.CSeq, method)
}

// ExtractCSeqNumber mirrors original_source/sip_server.c's
// extract_cseq_number: skip to the first digit, read the run of digits,
// default to 1 if none found. Deliberately not a strings.Fields split, so
// a malformed CSeq line degrades the same way as the C original. Exported
// so the dialog engine can re-derive a CSeq number from a stored leg
// header line (e.g. the B-leg CSeq) when building a correlated ACK/CANCEL.
func ExtractCSeqNumber(cseqLine string) int {
	i := 0
	for i < len(cseqLine) && (cseqLine[i] < '0' || cseqLine[i] > '9') {
		i++
	}
	j := i
	for j < len(cseqLine) && cseqLine[j] >= '0' && cseqLine[j] <= '9' {
		j++
	}
	if i == j {
		return 1
	}
	n, err := strconv.Atoi(cseqLine[i:j])
	if err != nil {
		return 1
	}
	return n
}
