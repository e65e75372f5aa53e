package sipmsg

import "testing"

func TestParseRequest(t *testing.T) {
	raw := []byte("INVITE sip:1002@127.0.0.1:5060 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.5:5060;branch=z9hG4bK1;rport\r\n" +
		"From: <sip:1001@127.0.0.1>;tag=abc\r\n" +
		"To: <sip:1002@127.0.0.1>\r\n" +
		"Call-ID: call-1\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Max-Forwards: 70\r\n" +
		"\r\n")

	msg, ok := Parse(raw)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if msg.Kind != KindRequest || msg.Method != "INVITE" {
		t.Fatalf("got kind=%v method=%q", msg.Kind, msg.Method)
	}
	if msg.CallID != "call-1" {
		t.Fatalf("got call-id %q", msg.CallID)
	}
	if msg.CSeqNumber != 1 {
		t.Fatalf("got cseq number %d", msg.CSeqNumber)
	}
	if msg.MaxForwards != 69 {
		t.Fatalf("expected max-forwards decremented to 69, got %d", msg.MaxForwards)
	}
}

func TestParseStatus(t *testing.T) {
	raw := []byte("SIP/2.0 180 Ringing\r\nCall-ID: call-1\r\nCSeq: 1 INVITE\r\n\r\n")
	msg, ok := Parse(raw)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if msg.Kind != KindStatus || msg.StatusCode != 180 {
		t.Fatalf("got kind=%v code=%d", msg.Kind, msg.StatusCode)
	}
}

func TestParseMissingCRLFFails(t *testing.T) {
	if _, ok := Parse([]byte("garbage no newline")); ok {
		t.Fatalf("expected parse failure for datagram without CRLF")
	}
}

func TestParseDefaultsMaxForwardsWhenAbsent(t *testing.T) {
	raw := []byte("BYE sip:1002@127.0.0.1 SIP/2.0\r\nCall-ID: c\r\n\r\n")
	msg, ok := Parse(raw)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if msg.MaxForwards != DefaultMaxForwards-1 {
		t.Fatalf("expected default-1 = %d, got %d", DefaultMaxForwards-1, msg.MaxForwards)
	}
}

func TestParseCapturesSDPBody(t *testing.T) {
	raw := []byte("INVITE sip:x SIP/2.0\r\nCall-ID: c\r\n\r\nContent-Type: application/sdp\r\nContent-Length: 4\r\n\r\nv=0\n")
	msg, ok := Parse(raw)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if !msg.HasSDP {
		t.Fatalf("expected HasSDP")
	}
	if len(msg.Body) == 0 {
		t.Fatalf("expected non-empty body")
	}
}

func TestExtractCSeqNumber(t *testing.T) {
	cases := []struct {
		line string
		want int
	}{
		{"CSeq: 42 INVITE", 42},
		{"CSeq:    7 BYE", 7},
		{"CSeq: garbled", 1},
		{"", 1},
	}
	for _, c := range cases {
		if got := ExtractCSeqNumber(c.line); got != c.want {
			t.Errorf("ExtractCSeqNumber(%q) = %d, want %d", c.line, got, c.want)
		}
	}
}

func TestCSeqMentions(t *testing.T) {
	msg := Message{CSeq: "CSeq: 3 CANCEL"}
	if !msg.CSeqMentions("CANCEL") {
		t.Fatalf("expected CSeqMentions(CANCEL) true")
	}
	if msg.CSeqMentions("BYE") {
		t.Fatalf("expected CSeqMentions(BYE) false")
	}
}
