package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AgentIDLength is the number of hex characters kept in an agent ID.
const AgentIDLength = 16

// ComputeAgentID computes a deterministic agent_id.
// Formula: SHA256(run_id|generation|seq), truncated to AgentIDLength hex chars.
// seq is the birth order within the generation.
func ComputeAgentID(runID string, generation int, seq int) string {
	data := fmt.Sprintf("%s|%d|%d", runID, generation, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:AgentIDLength]
}
