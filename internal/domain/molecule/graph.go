package molecule

// Components partitions the atoms into connected components by breadth-first
// search.  Atoms inside a component are in visit order; components are
// ordered by their smallest atom.
func (m *Molecule) Components() [][]int {
	n := len(m.atoms)
	adj := make([][]int, n)
	for _, b := range m.bonds {
		adj[b.A] = append(adj[b.A], b.B)
		adj[b.B] = append(adj[b.B], b.A)
	}

	visited := make([]bool, n)
	var comps [][]int
	for s := 0; s < n; s++ {
		if visited[s] {
			continue
		}
		visited[s] = true
		queue := []int{s}
		var comp []int
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			comp = append(comp, v)
			for _, w := range adj[v] {
				if !visited[w] {
					visited[w] = true
					queue = append(queue, w)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// IsConnected reports whether the molecule forms a single component.  A
// molecule without atoms is not connected.
func (m *Molecule) IsConnected() bool {
	return len(m.atoms) > 0 && len(m.Components()) == 1
}
