package store

import "encoding/binary"

// Declare database key prefix for objects
const (
	PrefixAccount    = "account:"
	PrefixCircle     = "circle:"
	PrefixMembership = "member:"
	PrefixTx         = "tx:"

	KeyLedgerMeta    = "meta:ledger"
	KeyLedgerVersion = "meta:version"
)

// idKey builds prefix + 8-byte big-endian id, which keeps ids in numeric
// order under byte-ordered iteration
func idKey(prefix string, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}
