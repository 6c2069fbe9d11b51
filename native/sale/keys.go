package sale

import (
	"encoding/hex"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	totalRaisedKey       = []byte("sale/raised/total")
	participantKeyPrefix = []byte("sale/raised/participant/")
)

func participantKey(participant ethcommon.Address) []byte {
	suffix := hex.EncodeToString(participant[:])
	key := make([]byte, len(participantKeyPrefix)+len(suffix))
	copy(key, participantKeyPrefix)
	copy(key[len(participantKeyPrefix):], suffix)
	return key
}
