package blobstore

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// ComputeAddress returns the CIDv1 (raw codec, sha2-256) of payload. It
// matches what an IPFS node reports for a single raw-leaf block, so S3 and
// IPFS backed records share one address format.
func ComputeAddress(payload []byte) (string, error) {
	hash, err := mh.Sum(payload, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	return gocid.NewCidV1(gocid.Raw, hash).String(), nil
}

// VerifyAddress reports whether payload hashes to address. Addresses that
// are not raw sha2-256 CIDs cannot be checked locally and report true.
func VerifyAddress(address string, payload []byte) (bool, error) {
	c, err := gocid.Decode(address)
	if err != nil {
		return false, fmt.Errorf("decode address: %w", err)
	}
	prefix := c.Prefix()
	if prefix.Codec != gocid.Raw || prefix.MhType != mh.SHA2_256 {
		return true, nil
	}
	sum, err := prefix.Sum(payload)
	if err != nil {
		return false, fmt.Errorf("hash payload: %w", err)
	}
	return sum.Equals(c), nil
}
