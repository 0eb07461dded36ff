package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(agent_id|ledger|seq|entry_time)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	agentID string,
	ledger string,
	seq int,
	entryTime int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		agentID,
		ledger,
		seq,
		entryTime,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
