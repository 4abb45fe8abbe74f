package tracking

import (
	"github.com/google/uuid"

	"github.com/nabekah/farmkonnect-tracking/internal/domain"
)

// stakeholderBindings associates connections with the stakeholder identity
// declared on them. Many connections may bind to one stakeholder (multiple
// devices); a connection binds at most once. Owned by the hub actor.
type stakeholderBindings struct {
	byConnection  map[uuid.UUID]string
	byStakeholder map[string]map[uuid.UUID]struct{}
}

func newStakeholderBindings() *stakeholderBindings {
	return &stakeholderBindings{
		byConnection:  make(map[uuid.UUID]string),
		byStakeholder: make(map[string]map[uuid.UUID]struct{}),
	}
}

// bind records connID ↔ stakeholderID. Binding again to the same stakeholder
// is a no-op; binding to a different one fails without mutating state.
func (b *stakeholderBindings) bind(connID uuid.UUID, stakeholderID string) error {
	if bound, ok := b.byConnection[connID]; ok {
		if bound == stakeholderID {
			return nil
		}
		return domain.ErrAlreadyBound
	}

	b.byConnection[connID] = stakeholderID
	set := b.byStakeholder[stakeholderID]
	if set == nil {
		set = make(map[uuid.UUID]struct{})
		b.byStakeholder[stakeholderID] = set
	}
	set[connID] = struct{}{}
	return nil
}

// unbind removes the connection's binding. Unbinding an unbound connection
// is a no-op. The stakeholder's subscriptions are untouched: they outlive
// individual connections.
func (b *stakeholderBindings) unbind(connID uuid.UUID) {
	stakeholderID, ok := b.byConnection[connID]
	if !ok {
		return
	}
	delete(b.byConnection, connID)

	set := b.byStakeholder[stakeholderID]
	delete(set, connID)
	if len(set) == 0 {
		delete(b.byStakeholder, stakeholderID)
	}
}

// connectionsFor returns the live connections bound to a stakeholder. May be
// nil when the stakeholder has no connection.
func (b *stakeholderBindings) connectionsFor(stakeholderID string) map[uuid.UUID]struct{} {
	return b.byStakeholder[stakeholderID]
}

// stakeholderFor returns the identity bound to a connection, if any.
func (b *stakeholderBindings) stakeholderFor(connID uuid.UUID) (string, bool) {
	stakeholderID, ok := b.byConnection[connID]
	return stakeholderID, ok
}
