package config

import (
	"crypto/rand"
	"encoding/hex"
)

// randomHex4 returns the 8-hex-character random suffix appended to the
// agent name, making agentId stable-but-unique for the process lifetime.
func randomHex4() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read on a sane platform does not fail; if it
		// somehow does, fall back to a fixed suffix rather than
		// panicking during config resolution.
		return "00000000"
	}
	return hex.EncodeToString(b)
}
