package service

import (
	"crypto/sha256"
	"encoding/hex"
)

// docDiff summarizes how two encoded documents differ, for drift logs:
// a short digest of each document and the offset of the first differing
// byte (-1 when equal).
func docDiff(prev, next []byte) (prevSum, nextSum string, offset int) {
	offset = -1
	for i := 0; i < len(prev) && i < len(next); i++ {
		if prev[i] != next[i] {
			offset = i
			break
		}
	}
	if offset < 0 && len(prev) != len(next) {
		offset = min(len(prev), len(next))
	}
	p := sha256.Sum256(prev)
	n := sha256.Sum256(next)
	return hex.EncodeToString(p[:8]), hex.EncodeToString(n[:8]), offset
}
