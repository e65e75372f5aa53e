package location

import (
	"strings"

	"tinysip/internal/callmap"
	"tinysip/internal/sipmsg"
)

// Registrar handles REGISTER per §4.4: resolve the username from the
// From URI, update the table, and answer 200 or 404. It has no knowledge
// of the call map or the dialog engine — REGISTER never touches a call.
type Registrar struct {
	Table *Table
}

// HandleRegister builds the outbound response for an inbound REGISTER
// message, mutating the table on success, and reports the outcome
// ("success" or "not_found") for the caller to record on the status page.
// No password check is performed: per §4.4, authentication is documented
// future work, not a current contract (see original_source/sip_server.c's
// unused parse_authorization_header).
func (r *Registrar) HandleRegister(msg sipmsg.Message, src callmap.Addr) ([]byte, string) {
	username, ok := usernameFromFrom(msg.From)
	if !ok {
		return sipmsg.BuildResponse(sipmsg.Response{
			Code: 404, Reason: "Not Found",
			Via: msg.Via, From: msg.From, To: msg.To, CSeq: msg.CSeq,
			CallID: msg.CallID,
		}), "not_found"
	}

	entry, found := r.Table.Register(username, src.IP, src.Port)
	if !found {
		return sipmsg.BuildResponse(sipmsg.Response{
			Code: 404, Reason: "Not Found",
			Via: msg.Via, From: msg.From, To: msg.To, CSeq: msg.CSeq,
			CallID: msg.CallID,
		}), "not_found"
	}

	contact := msg.Contact
	if contact == "" {
		contact = "Contact: " + sipmsg.ContactURI(entry.IP, entry.Port)
	}
	contact += ";expires=7200"

	return sipmsg.BuildResponse(sipmsg.Response{
		Code: 200, Reason: "OK",
		Via: msg.Via, From: msg.From, To: msg.To, CSeq: msg.CSeq,
		CallID:  msg.CallID,
		Contact: contact,
	}), "success"
}

// usernameFromFrom extracts the substring between "sip:" and '@' in the
// From header, matching original_source/sip_server.c's handle_register
// exactly (no space stop, unlike the To-header callee extraction used by
// the dialog engine for INVITE routing).
func usernameFromFrom(fromHeader string) (string, bool) {
	idx := strings.Index(fromHeader, "sip:")
	if idx < 0 {
		return "", false
	}
	rest := fromHeader[idx+len("sip:"):]
	at := strings.Index(rest, "@")
	if at < 0 {
		return "", false
	}
	return rest[:at], true
}
