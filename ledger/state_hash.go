package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"github.com/mezonai/circlepay/types"
)

// computeDeltaHash hashes every record a committed operation wrote. Records are
// encoded field by field with length-prefixed strings and sorted by key within
// each kind, so the same change set always yields the same digest.
func computeDeltaHash(cs *changeSet) [32]byte {
	h := sha256.New()
	buf := make([]byte, 8)

	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf, v)
		h.Write(buf)
	}
	writeString := func(s string) {
		writeUint(uint64(len(s)))
		h.Write([]byte(s))
	}

	accounts := append([]*types.Account(nil), cs.accounts...)
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Identity < accounts[j].Identity })
	for _, acc := range accounts {
		h.Write([]byte{'a'})
		writeString(acc.Identity)
		writeUint(acc.SpendableBalance)
		writeUint(acc.SavingsBalance)
		writeUint(uint64(acc.AutoSavePercent))
		writeString(acc.ContactInfo)
		writeUint(acc.CreatedAt)
	}

	for _, c := range cs.circles {
		h.Write([]byte{'c'})
		writeUint(c.ID)
		writeString(c.Name)
		writeString(c.Creator)
		writeUint(c.TargetAmount)
		writeUint(c.CurrentAmount)
		writeUint(uint64(c.MemberCount))
		writeUint(uint64(c.MaxMembers))
		writeUint(c.ContributionAmount)
		writeUint(uint64(c.PayoutFrequency))
		writeUint(c.NextPayout)
		writeBool(h, c.Active)
	}

	for _, m := range cs.memberships {
		h.Write([]byte{'m'})
		writeUint(m.CircleID)
		writeString(m.Member)
		writeUint(m.JoinedAt)
		writeUint(m.TotalContributed)
		writeUint(m.LastContribution)
	}

	if tx := cs.tx; tx != nil {
		h.Write([]byte{'t'})
		writeUint(tx.ID)
		writeString(tx.From)
		writeString(tx.To)
		writeUint(tx.Amount)
		writeUint(uint64(tx.Kind))
		writeUint(tx.Timestamp)
	}

	p := cs.params
	h.Write([]byte{'p'})
	writeString(p.Owner)
	writeUint(uint64(p.FeeRateBps))
	writeUint(p.NextCircleID)
	writeUint(p.NextTxID)
	writeUint(p.Height)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeBool(h hash.Hash, v bool) {
	if v {
		h.Write([]byte{1})
		return
	}
	h.Write([]byte{0})
}

// combineStateHash folds delta into the previous digest: SHA256(prev || delta),
// or delta itself when there is no previous digest.
func combineStateHash(prevHex string, delta [32]byte) (string, error) {
	if prevHex == "" {
		return hex.EncodeToString(delta[:]), nil
	}
	prev, err := hex.DecodeString(prevHex)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(prev)
	h.Write(delta[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}
