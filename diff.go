package tagpool

// tagDiff computes the (adds, removes) pair for one item's tag
// transition, namespaced to backend tag ids (spec.md §3 invariant 3,
// §4.1.2). A never-fetched item has an empty prevTags, so every current
// tag becomes an add — including on a re-save without a fetch in between,
// which spec.md §4.1.2 explicitly calls out as acceptable redundant work.
func (p *PoolImpl) tagDiff(item *Item) (adds, removes []string) {
	for t := range item.tags {
		if _, stillPresent := item.prevTags[t]; !stillPresent {
			adds = append(adds, p.tagID(t))
		}
	}
	for t := range item.prevTags {
		if _, stillPresent := item.tags[t]; !stillPresent {
			removes = append(removes, p.tagID(t))
		}
	}
	return adds, removes
}
