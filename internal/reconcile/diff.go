package reconcile

// Delta is the set difference between two membership snapshots.
type Delta[K comparable] struct {
	Added   []K
	Removed []K
}

func (d Delta[K]) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Diff returns Added = next − prev and Removed = prev − next. Inputs are treated as
// sets; duplicates collapse. Result order is unspecified.
func Diff[K comparable](prev, next []K) Delta[K] {
	prevSet := toSet(prev)
	nextSet := toSet(next)

	var d Delta[K]
	for k := range nextSet {
		if _, ok := prevSet[k]; !ok {
			d.Added = append(d.Added, k)
		}
	}
	for k := range prevSet {
		if _, ok := nextSet[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	return d
}

func toSet[K comparable](in []K) map[K]struct{} {
	out := make(map[K]struct{}, len(in))
	for _, k := range in {
		out[k] = struct{}{}
	}
	return out
}
