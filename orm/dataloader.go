package orm

// OrderByKeys reorders items to match the order of keys, using keyOf to
// extract each item's key. Keys with no matching item are skipped; items
// whose key isn't in keys are dropped. Nothing in this module calls it;
// HydrateRelations' Many2one distribution looks related rows up through
// GroupByKey instead.
func OrderByKeys[T any, K comparable](items []T, keys []K, keyOf func(T) K) []T {
	byKey := make(map[K]T, len(items))
	for _, item := range items {
		byKey[keyOf(item)] = item
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if item, ok := byKey[k]; ok {
			out = append(out, item)
		}
	}
	return out
}

// GroupByKey partitions items into buckets keyed by keyOf(item), preserving
// each bucket's relative item order. Used to turn a batched One2many or
// Many2many join-query result (one flat slice covering every parent) back
// into per-parent slices before HydrateRelations assigns them.
func GroupByKey[T any, K comparable](items []T, keyOf func(T) K) map[K][]T {
	out := make(map[K][]T)
	for _, item := range items {
		k := keyOf(item)
		out[k] = append(out[k], item)
	}
	return out
}

// OrderGroupsByKeys returns, for each key in keys, the group GroupByKey
// produced for that key (nil if none), in the same order as
// keys. Combines GroupByKey with OrderByKeys' ordering guarantee for
// to-many relations, where every parent id needs an entry even when no
// related row matched it.
func OrderGroupsByKeys[T any, K comparable](groups map[K][]T, keys []K) [][]T {
	out := make([][]T, len(keys))
	for i, k := range keys {
		out[i] = groups[k]
	}
	return out
}
