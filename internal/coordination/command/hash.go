package command

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// ContentHash returns a digest of cmd's type and exported fields. Unexported
// BaseCommand fields (id, timestamp, trace) never contribute, so two commands
// with the same intent hash equal. Commands with generated ids implement
// ContentHash themselves to leave those ids out.
func ContentHash(cmd Command) string {
	if h, ok := cmd.(interface{ ContentHash() string }); ok {
		return contentHash(cmd.Type(), h.ContentHash())
	}
	return contentHash(cmd.Type(), cmd)
}

func contentHash(parts ...any) string {
	h := blake3.New()
	for _, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			b = fmt.Appendf(nil, "%#v", p)
		}
		_, _ = h.Write(b)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
