package viewgraph

// Prune reduces two parallel pair-keyed estimate maps to the edges whose
// endpoints both lie in the largest connected component of the pair graph.
//
// An edge exists for a pair key with a non-nil estimate in either map or with
// an entry in priors; a prior alone can keep an edge alive even when both
// fresh estimates failed. The surviving component is the one spanning the
// most images; ties break toward the component containing the lowest image
// index, so pruning is deterministic. Entries whose estimate is nil are
// dropped from the returned maps.
//
// An empty edge set is valid input and yields empty output maps.
func Prune[T1, T2 any](
	m1 map[PairKey]*T1,
	m2 map[PairKey]*T2,
	priors map[PairKey]*PosePrior,
) (map[PairKey]*T1, map[PairKey]*T2) {
	edges := make(map[PairKey]struct{})
	for k, v := range m1 {
		if v != nil {
			edges[k] = struct{}{}
		}
	}
	for k, v := range m2 {
		if v != nil {
			edges[k] = struct{}{}
		}
	}
	for k, v := range priors {
		if v != nil {
			edges[k] = struct{}{}
		}
	}

	keep := largestComponent(edges)

	out1 := make(map[PairKey]*T1)
	for k, v := range m1 {
		if v == nil {
			continue
		}
		if _, ok := keep[k.I1]; !ok {
			continue
		}
		if _, ok := keep[k.I2]; !ok {
			continue
		}
		out1[k] = v
	}
	out2 := make(map[PairKey]*T2)
	for k, v := range m2 {
		if v == nil {
			continue
		}
		if _, ok := keep[k.I1]; !ok {
			continue
		}
		if _, ok := keep[k.I2]; !ok {
			continue
		}
		out2[k] = v
	}
	return out1, out2
}

// largestComponent returns the set of image indices in the largest connected
// component of the given edge set, breaking size ties toward the component
// containing the lowest image index.
func largestComponent(edges map[PairKey]struct{}) map[int]struct{} {
	uf := newUnionFind()
	for k := range edges {
		uf.union(k.I1, k.I2)
	}

	members := make(map[int][]int)
	for node := range uf.parent {
		root := uf.find(node)
		members[root] = append(members[root], node)
	}

	best := make(map[int]struct{})
	bestSize, bestMin := 0, -1
	for _, nodes := range members {
		minIdx := nodes[0]
		for _, n := range nodes[1:] {
			if n < minIdx {
				minIdx = n
			}
		}
		if len(nodes) > bestSize || (len(nodes) == bestSize && (bestMin == -1 || minIdx < bestMin)) {
			bestSize = len(nodes)
			bestMin = minIdx
			best = make(map[int]struct{}, len(nodes))
			for _, n := range nodes {
				best[n] = struct{}{}
			}
		}
	}
	return best
}

type unionFind struct {
	parent map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int]int)}
}

func (uf *unionFind) find(x int) int {
	if _, ok := uf.parent[x]; !ok {
		uf.parent[x] = x
	}
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	// root at the smaller index so iteration-independent choices stay stable
	if rb < ra {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
}
