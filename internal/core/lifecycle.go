package core

import "scodata/pkg/domain"

var runTransitions = map[domain.RunState]map[domain.RunState]struct{}{
	domain.RunCreated: toSet(domain.RunRunning, domain.RunCanceled),
	domain.RunRunning: toSet(domain.RunSuccess, domain.RunFailed, domain.RunCanceled),
}

// canTransition reports whether a model run may move from one state to another.
// Terminal states have no outgoing edges.
func canTransition(from, to domain.RunState) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	_, ok := runTransitions[from][to]
	return ok
}

func toSet[K comparable](values ...K) map[K]struct{} {
	out := make(map[K]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
