package sipmsg

import (
	"strings"
	"testing"
)

func TestBuildResponseServerOriginatedIncludesUserAgentAndContact(t *testing.T) {
	out := string(BuildResponse(Response{
		Code: 180, Reason: "Ringing",
		Via: "Via: x", From: "From: a", To: "To: b", CSeq: "CSeq: 1 INVITE",
		CallID:           "call-1",
		ServerOriginated: true,
		Contact:          ContactHeader("127.0.0.1", 5060),
	}))

	if !strings.HasPrefix(out, "SIP/2.0 180 Ringing\r\n") {
		t.Fatalf("bad status line: %q", out)
	}
	if !strings.Contains(out, "User-Agent: "+UserAgent) {
		t.Fatalf("expected User-Agent header, got %q", out)
	}
	if !strings.Contains(out, "Contact: <sip:TinySIP@127.0.0.1:5060>") {
		t.Fatalf("expected Contact header, got %q", out)
	}
}

func TestBuildResponseNonServerOriginatedOmitsUserAgent(t *testing.T) {
	out := string(BuildResponse(Response{
		Code: 200, Reason: "OK",
		Via: "Via: x", From: "From: a", To: "To: b", CSeq: "CSeq: 1 BYE",
		CallID: "call-1",
	}))
	if strings.Contains(out, "User-Agent") {
		t.Fatalf("did not expect User-Agent in non-server-originated response, got %q", out)
	}
	if strings.Contains(out, "Contact") {
		t.Fatalf("did not expect Contact, got %q", out)
	}
}

func TestBuildResponseNoBodyAddsContentLengthZero(t *testing.T) {
	out := string(BuildResponse(Response{Code: 404, Reason: "Not Found", CallID: "c"}))
	if !strings.HasSuffix(out, "Content-Length: 0\r\n\r\n") {
		t.Fatalf("expected trailing Content-Length: 0, got %q", out)
	}
}

func TestBuildRequestAlwaysIncludesUserAgentAndMaxForwards(t *testing.T) {
	out := string(BuildRequest(Request{
		Method: "INVITE", RequestURI: "sip:1002@127.0.0.1:5060",
		Via: "Via: x", From: "From: a", To: "To: b", CSeq: "CSeq: 1 INVITE",
		CallID:      "call-1",
		MaxForwards: 70,
	}))
	if !strings.HasPrefix(out, "INVITE sip:1002@127.0.0.1:5060 SIP/2.0\r\n") {
		t.Fatalf("bad request line: %q", out)
	}
	if !strings.Contains(out, "User-Agent: "+UserAgent) {
		t.Fatalf("expected User-Agent in request, got %q", out)
	}
	if !strings.Contains(out, "Max-Forwards: 70") {
		t.Fatalf("expected Max-Forwards, got %q", out)
	}
}

func TestContactHeaderShape(t *testing.T) {
	got := ContactHeader("10.0.0.1", 5080)
	want := "Contact: <sip:TinySIP@10.0.0.1:5080>"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
