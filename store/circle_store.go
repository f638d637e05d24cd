package store

import (
	"fmt"
	"sort"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/types"
)

// CircleStore persists circles and their memberships
type CircleStore interface {
	StageCircle(batch db.DatabaseBatch, circle *types.Circle) error
	StageMembership(batch db.DatabaseBatch, membership *types.Membership) error
	GetCircle(id uint64) (*types.Circle, error)
	GetMembership(key types.MembershipKey) (*types.Membership, error)
	ListMembers(circleID uint64) ([]*types.Membership, error)
	MustClose()
}

type GenericCircleStore struct {
	dbProvider db.DatabaseProvider
}

func NewGenericCircleStore(dbProvider db.DatabaseProvider) (*GenericCircleStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericCircleStore{dbProvider: dbProvider}, nil
}

func (cs *GenericCircleStore) StageCircle(batch db.DatabaseBatch, circle *types.Circle) error {
	data, err := jsonx.Marshal(circle)
	if err != nil {
		return fmt.Errorf("failed to marshal circle %d: %w", circle.ID, err)
	}
	batch.Put(idKey(PrefixCircle, circle.ID), data)
	return nil
}

func (cs *GenericCircleStore) StageMembership(batch db.DatabaseBatch, membership *types.Membership) error {
	data, err := jsonx.Marshal(membership)
	if err != nil {
		return fmt.Errorf("failed to marshal membership %s: %w", membership.Key(), err)
	}
	batch.Put(cs.membershipKey(membership.Key()), data)
	return nil
}

// GetCircle returns nil, nil when the circle does not exist
func (cs *GenericCircleStore) GetCircle(id uint64) (*types.Circle, error) {
	data, err := cs.dbProvider.Get(idKey(PrefixCircle, id))
	if err != nil {
		return nil, fmt.Errorf("could not get circle %d from db: %w", id, err)
	}
	if data == nil {
		return nil, nil
	}
	var c types.Circle
	if err := jsonx.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal circle %d: %w", id, err)
	}
	return &c, nil
}

// GetMembership returns nil, nil when there is no such membership
func (cs *GenericCircleStore) GetMembership(key types.MembershipKey) (*types.Membership, error) {
	data, err := cs.dbProvider.Get(cs.membershipKey(key))
	if err != nil {
		return nil, fmt.Errorf("could not get membership %s from db: %w", key, err)
	}
	if data == nil {
		return nil, nil
	}
	var m types.Membership
	if err := jsonx.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal membership %s: %w", key, err)
	}
	return &m, nil
}

// ListMembers returns the memberships of a circle ordered by join height then identity.
// Requires an iterable provider.
func (cs *GenericCircleStore) ListMembers(circleID uint64) ([]*types.Membership, error) {
	members := make([]*types.Membership, 0)
	var decodeErr error
	err := db.IteratePrefix(cs.dbProvider, idKey(PrefixMembership, circleID), func(_, value []byte) bool {
		var m types.Membership
		if err := jsonx.Unmarshal(value, &m); err != nil {
			decodeErr = err
			return false
		}
		members = append(members, &m)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("could not list members of circle %d: %w", circleID, err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to unmarshal membership of circle %d: %w", circleID, decodeErr)
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt != members[j].JoinedAt {
			return members[i].JoinedAt < members[j].JoinedAt
		}
		return members[i].Member < members[j].Member
	})
	return members, nil
}

func (cs *GenericCircleStore) MustClose() {
	if err := cs.dbProvider.Close(); err != nil {
		logx.Error("CIRCLE_STORE", "Failed to close db provider:", err.Error())
	}
}

func (cs *GenericCircleStore) membershipKey(key types.MembershipKey) []byte {
	return append([]byte(PrefixMembership), key.Bytes()...)
}
