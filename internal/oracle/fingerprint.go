package oracle

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Fingerprint hashes the parts of a prompt so identical questions can be
// answered from cache. Parts are separated so ("ab", "c") and ("a", "bc")
// differ.
func Fingerprint(parts ...string) string {
	h := sha3.New256()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (a Action) fingerprint() string {
	form := ""
	if a.Form != nil {
		form = a.Form.Signature() + " " + a.Form.Submit
	}
	return Fingerprint(string(a.Kind), a.Target, form, a.Context)
}
