package types

import (
	"encoding/binary"
	"fmt"
)

// MaxCircleNameBytes bounds Circle.Name
const MaxCircleNameBytes = 50

// Circle is a fixed-membership savings pool with a per-round contribution
type Circle struct {
	ID                 uint64 `json:"id"`
	Name               string `json:"name"`
	Creator            string `json:"creator"`
	TargetAmount       uint64 `json:"target_amount"`
	CurrentAmount      uint64 `json:"current_amount"`
	MemberCount        uint32 `json:"member_count"`
	MaxMembers         uint32 `json:"max_members"`
	ContributionAmount uint64 `json:"contribution_amount"`
	PayoutFrequency    uint32 `json:"payout_frequency"`
	NextPayout         uint64 `json:"next_payout"`
	Active             bool   `json:"active"`
}

// IsFull reports whether no further member can join
func (c *Circle) IsFull() bool {
	return c.MemberCount >= c.MaxMembers
}

// MembershipKey identifies one member of one circle
type MembershipKey struct {
	CircleID uint64
	Member   string
}

// Bytes encodes the key as 8-byte big-endian circle id followed by the identity,
// so all members of a circle share a common prefix.
func (k MembershipKey) Bytes() []byte {
	b := make([]byte, 8+len(k.Member))
	binary.BigEndian.PutUint64(b, k.CircleID)
	copy(b[8:], k.Member)
	return b
}

func (k MembershipKey) String() string {
	return fmt.Sprintf("%d/%s", k.CircleID, k.Member)
}

// Membership tracks one member's participation in a circle
type Membership struct {
	CircleID         uint64 `json:"circle_id"`
	Member           string `json:"member"`
	JoinedAt         uint64 `json:"joined_at"`
	TotalContributed uint64 `json:"total_contributed"`
	LastContribution uint64 `json:"last_contribution"` // 0 = never
}

func (m *Membership) Key() MembershipKey {
	return MembershipKey{CircleID: m.CircleID, Member: m.Member}
}
