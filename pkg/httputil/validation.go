package httputil

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gocid "github.com/ipfs/go-cid"
)

// ValidateCID checks if a string parses as an IPFS CID (v0 or v1).
func ValidateCID(cid string) bool {
	cid = strings.TrimSpace(cid)
	if cid == "" {
		return false
	}
	_, err := gocid.Decode(cid)
	return err == nil
}

// ValidateIdentity checks if a string is a well-formed account identity:
// 40 hex characters, optionally prefixed with "0x".
func ValidateIdentity(identity string) bool {
	return common.IsHexAddress(strings.TrimSpace(identity))
}

// NormalizeIdentity returns the checksummed "0x" form of a valid identity.
// Callers must check ValidateIdentity first.
func NormalizeIdentity(identity string) string {
	return common.HexToAddress(strings.TrimSpace(identity)).Hex()
}

// IsEmpty checks if a string is empty after trimming whitespace.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
