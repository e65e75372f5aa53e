package dialog

import "strings"

// BetweenAngles extracts the substring between the first '<' and the next
// '>', used for Contact URI capture and for the callee URI inside a To
// header (§4.7 step 5, §3's "Contact URI extracted from between < and >").
func BetweenAngles(s string) (string, bool) {
	start := strings.Index(s, "<")
	if start < 0 {
		return "", false
	}
	rest := s[start+1:]
	end := strings.Index(rest, ">")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// UsernameStopAtSpaceOrAt strips a leading "sip:" or "tel:" scheme and
// returns everything up to the first space or '@', whichever comes first.
// Mirrors original_source/sip_server.c's callee-URI extraction inside the
// initial INVITE's To header (§4.7 step 5, §10).
func UsernameStopAtSpaceOrAt(uri string) string {
	s := uri
	switch {
	case strings.HasPrefix(s, "sip:"):
		s = s[len("sip:"):]
	case strings.HasPrefix(s, "tel:"):
		s = s[len("tel:"):]
	}
	end := len(s)
	for i, c := range s {
		if c == ' ' || c == '@' {
			end = i
			break
		}
	}
	return s[:end]
}
