// Package id generates ordered, opaque identifiers for store entities.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var counter uint32

// New returns a 12-byte ObjectID-like string (24 hex characters): a 4-byte
// Unix timestamp, 5 random bytes, and a 3-byte rolling counter. Lexical
// order on the hex string tracks creation order to the second.
func New() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&counter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// TimestampOf extracts the creation time embedded in an id produced by New.
func TimestampOf(idStr string) (time.Time, error) {
	if len(idStr) < 8 {
		return time.Time{}, fmt.Errorf("id: %q too short to carry a timestamp", idStr)
	}
	b, err := hex.DecodeString(idStr[:8])
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(binary.BigEndian.Uint32(b)), 0), nil
}

// OlderThan reports whether the id was minted more than d ago.
func OlderThan(idStr string, d time.Duration) bool {
	t, err := TimestampOf(idStr)
	if err != nil {
		return false
	}
	return time.Since(t) > d
}
