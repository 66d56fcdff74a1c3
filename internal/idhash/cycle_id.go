// Package idhash derives deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ComputeCycleID computes a deterministic cycle_id using SHA256.
// Formula: SHA256(at_unix_ms|SYM1,SYM2,...) with symbols in leaderboard order.
// Returns hex-encoded hash (64 characters).
func ComputeCycleID(at time.Time, symbols []string) string {
	data := fmt.Sprintf("%d|%s", at.UnixMilli(), strings.Join(symbols, ","))

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Short returns the first 12 characters of id for log output.
func Short(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
