package snapshot

import (
	"crypto/sha1" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"strconv"
	"strings"
)

const domHashLength = 16

// DomHash fingerprints the ordered (id, stableRef, visible, enabled, text, value)
// tuples of a node list. Equal hashes mean content-equivalent snapshots.
func DomHash(nodes []Node) string {
	h := sha1.New() //nolint:gosec
	var line strings.Builder
	for i, n := range nodes {
		line.Reset()
		if i > 0 {
			line.WriteByte('\n')
		}
		line.WriteString(n.ID)
		line.WriteByte('|')
		line.WriteString(n.StableRef)
		line.WriteByte('|')
		line.WriteString(strconv.FormatBool(n.Visible))
		line.WriteByte('|')
		line.WriteString(strconv.FormatBool(n.Enabled))
		line.WriteByte('|')
		line.WriteString(escapeField(n.Text))
		line.WriteByte('|')
		line.WriteString(escapeField(n.Value))
		h.Write([]byte(line.String()))
	}
	return hex.EncodeToString(h.Sum(nil))[:domHashLength]
}

// escapeField keeps separators inside free text from colliding with tuple
// boundaries.
func escapeField(s string) string {
	if !strings.ContainsAny(s, "|\n\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, "|", `\|`, "\n", `\n`)
	return r.Replace(s)
}
