package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// NodeKeyPrefix marks cleartext node credentials so agents and operators can
// recognise them in config files.
const NodeKeyPrefix = "nk_"

// IssuedNodeCredential is the one-shot cleartext shape produced by minting.
// No read path can construct it; after the create-node (or bundle) response
// is written, only the verifier hash survives.
type IssuedNodeCredential struct {
	NodeID string `json:"node_id"`
	Key    string `json:"node_api_key"`
}

// MintNodeKey generates a 128-bit random node credential. It returns the
// cleartext key and the verifier hash to persist.
func MintNodeKey() (cleartext, verifier string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate node key: %w", err)
	}
	cleartext = NodeKeyPrefix + hex.EncodeToString(buf)
	return cleartext, HashNodeKey(cleartext), nil
}

// HashNodeKey returns the stored verifier for a cleartext node key. The key
// carries 128 bits of entropy, so a plain digest is sufficient; the adaptive
// work factor used for passwords would add ~50ms to every ingest call.
func HashNodeKey(cleartext string) string {
	sum := sha256.Sum256([]byte(cleartext))
	return hex.EncodeToString(sum[:])
}

// VerifyNodeKey compares a presented cleartext key against the stored
// verifier in constant time.
func VerifyNodeKey(verifier, presented string) bool {
	if !strings.HasPrefix(presented, NodeKeyPrefix) {
		return false
	}
	sum := sha256.Sum256([]byte(presented))
	presentedHex := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(verifier), []byte(presentedHex)) == 1
}

// NewNodeID returns an opaque, URL-safe node identifier.
func NewNodeID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate node id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
