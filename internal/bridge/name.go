package bridge

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const namePrefix = "__crosslink_bridge__"

// Name returns the reserved frame name for the bridge to domain. The readable
// part folds punctuation to "_", so a hash of the domain keeps names distinct.
func Name(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	var b strings.Builder
	b.WriteString(namePrefix)
	for _, r := range domain {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	fmt.Fprintf(&b, "_%08x", uint32(xxhash.Sum64String(domain)))
	return b.String()
}
