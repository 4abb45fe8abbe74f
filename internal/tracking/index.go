package tracking

import "log/slog"

// stakeholderSubscription is one stakeholder's declared interest.
type stakeholderSubscription struct {
	productIDs   map[string]struct{}
	batchNumbers map[string]struct{}
}

func (s *stakeholderSubscription) empty() bool {
	return len(s.productIDs) == 0 && len(s.batchNumbers) == 0
}

// subscriptionIndex maps stakeholders to the products and batches they follow
// and maintains the reverse indices used for interest lookup. The reverse
// indices are a strict mirror of the per-stakeholder sets; all mutation goes
// through the hub actor, so no locking happens here.
type subscriptionIndex struct {
	byStakeholder      map[string]*stakeholderSubscription
	productSubscribers map[string]map[string]struct{}
	batchSubscribers   map[string]map[string]struct{}
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{
		byStakeholder:      make(map[string]*stakeholderSubscription),
		productSubscribers: make(map[string]map[string]struct{}),
		batchSubscribers:   make(map[string]map[string]struct{}),
	}
}

// subscribe unions the given ids into the stakeholder's subscription.
// Empty slices and duplicate ids are no-ops (set semantics).
func (idx *subscriptionIndex) subscribe(stakeholderID string, productIDs, batchNumbers []string) {
	if len(productIDs) == 0 && len(batchNumbers) == 0 {
		return
	}

	sub, ok := idx.byStakeholder[stakeholderID]
	if !ok {
		sub = &stakeholderSubscription{
			productIDs:   make(map[string]struct{}),
			batchNumbers: make(map[string]struct{}),
		}
		idx.byStakeholder[stakeholderID] = sub
	}

	for _, id := range productIDs {
		sub.productIDs[id] = struct{}{}
		addReverse(idx.productSubscribers, id, stakeholderID)
	}
	for _, id := range batchNumbers {
		sub.batchNumbers[id] = struct{}{}
		addReverse(idx.batchSubscribers, id, stakeholderID)
	}
}

// unsubscribe removes the given ids. Removing an id the stakeholder never
// held is a no-op for that id. Once both sets are empty the stakeholder's
// record is pruned entirely.
func (idx *subscriptionIndex) unsubscribe(stakeholderID string, productIDs, batchNumbers []string) {
	sub, ok := idx.byStakeholder[stakeholderID]
	if !ok {
		return
	}

	for _, id := range productIDs {
		if _, held := sub.productIDs[id]; !held {
			continue
		}
		delete(sub.productIDs, id)
		removeReverse(idx.productSubscribers, id, stakeholderID, "product")
	}
	for _, id := range batchNumbers {
		if _, held := sub.batchNumbers[id]; !held {
			continue
		}
		delete(sub.batchNumbers, id)
		removeReverse(idx.batchSubscribers, id, stakeholderID, "batch")
	}

	if sub.empty() {
		delete(idx.byStakeholder, stakeholderID)
	}
}

// interested returns the union of product and batch subscribers for the
// given fan-out keys. The returned set is freshly allocated.
func (idx *subscriptionIndex) interested(productID, batchNumber string) map[string]struct{} {
	out := make(map[string]struct{})
	for stakeholderID := range idx.productSubscribers[productID] {
		out[stakeholderID] = struct{}{}
	}
	for stakeholderID := range idx.batchSubscribers[batchNumber] {
		out[stakeholderID] = struct{}{}
	}
	return out
}

func (idx *subscriptionIndex) stakeholderCount() int { return len(idx.byStakeholder) }
func (idx *subscriptionIndex) productCount() int     { return len(idx.productSubscribers) }
func (idx *subscriptionIndex) batchCount() int       { return len(idx.batchSubscribers) }

func addReverse(rev map[string]map[string]struct{}, key, stakeholderID string) {
	set := rev[key]
	if set == nil {
		set = make(map[string]struct{})
		rev[key] = set
	}
	set[stakeholderID] = struct{}{}
}

func removeReverse(rev map[string]map[string]struct{}, key, stakeholderID, kind string) {
	set, ok := rev[key]
	if !ok {
		// Mirror divergence. The forward set held the id, so the reverse
		// entry must exist. Log and carry on with the repaired state.
		slog.Error("subscription index mirror divergence",
			"kind", kind, "key", key, "stakeholder_id", stakeholderID)
		return
	}
	delete(set, stakeholderID)
	if len(set) == 0 {
		delete(rev, key)
	}
}
