package preload

// dedupeKeys returns keys in first-seen order with duplicates removed,
// mirroring the batching step of the teacher's dataloader (GroupByKey's
// companion key-collection pass): a loader must issue exactly one query
// per distinct key, however many times that key appears among the rows
// requesting it.
func dedupeKeys(keys []any) []any {
	seen := make(map[any]struct{}, len(keys))
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
