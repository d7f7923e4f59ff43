package draw

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WinnerIndex maps a revealed block hash onto a participant snapshot:
// the hash taken as a big-endian integer, modulo the participant count.
// Zero-indexed into the snapshot ordered by ticket number. Anyone who
// knows the published hash and the published ticket list can recompute
// the winner; nothing here depends on private state.
func WinnerIndex(hash common.Hash, participantCount int) int {
	value := new(big.Int).SetBytes(hash.Bytes())
	count := big.NewInt(int64(participantCount))
	return int(value.Mod(value, count).Int64())
}
