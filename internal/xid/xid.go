// Package xid generates prefixed, sortable-enough identifiers for rows the
// core creates (sessions, sales, returns, audit entries). Bill numbers are
// NOT xids; they come from the sequencing logic in the store layer.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const randomBytes = 8

func New(prefix string) string {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; a timestamp-only
		// id keeps inserts working in that degenerate case.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
