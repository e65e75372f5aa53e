package dialog

import (
	"fmt"
	"strings"
)

// RewriteVia implements §4.7 step 1 of the initial INVITE transition: add
// ";received=<source-ip>" and, if the header already carried a bare
// ";rport" token, substitute ";rport=<source-port>" in its place while
// preserving whatever followed it (e.g. a trailing ";branch=..."). This is
// substring surgery on purpose, per §9's "header rewriting by string
// surgery" design note and the restored exact shape in SPEC_FULL §10 —
// not a structured Via parse.
func RewriteVia(viaLine, sourceIP string, sourcePort int) string {
	idx := strings.Index(viaLine, ";rport")
	if idx < 0 {
		return viaLine + fmt.Sprintf(";received=%s", sourceIP)
	}
	suffix := viaLine[idx+len(";rport"):]
	return viaLine[:idx] + fmt.Sprintf(";rport=%d;received=%s", sourcePort, sourceIP) + suffix
}
