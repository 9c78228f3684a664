// Package canon holds the graph invariants the generator relies on: the
// symmetry classes that drive equivalence-class extension and the canonical
// identity used for isomorphism dedup.
package canon

import (
	"sort"

	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/pkg/errors"
)

// ---------------------------------------------------------------------------
// Symmetry oracle
// ---------------------------------------------------------------------------

// Symmetry computes symmetry classes by iterative partition refinement of a
// packed per-atom invariant, with ranks refined through products of primes
// indexed by neighbour ranks.  Labels are 1-based and equal the position of
// the first atom of the class in the sorted ordering, so that for
// C3C3C2C2C1C1 without bonds the labels are [5 5 3 3 1 1].
type Symmetry struct{}

// NewSymmetry returns the symmetry oracle.
func NewSymmetry() *Symmetry { return &Symmetry{} }

var _ molecule.SymmetryOracle = (*Symmetry)(nil)

// Symmetry implements molecule.SymmetryOracle.
func (s *Symmetry) Symmetry(m *molecule.Molecule) ([]int, error) {
	if m == nil {
		return nil, errors.New(errors.CodeOracleFailure, "symmetry: nil molecule")
	}
	atoms := m.Atoms()
	ord := len(atoms)
	if ord == 0 {
		return []int{}, nil
	}

	g := adjacency(m)
	invariants, err := basicInvariants(atoms, g)
	if err != nil {
		return nil, err
	}
	hydrogens := terminalHydrogens(atoms, g)
	primes := firstPrimes(ord + 1)

	prev := make([]int64, ord)
	for i := range prev {
		prev[i] = 1
	}
	curr := invariants

	var n int
	prev, n = rank(prev, curr)
	for last := 0; n > last && n < ord; {
		last = n
		next := make([]int64, ord)
		for v := 0; v < ord; v++ {
			if hydrogens[v] {
				next[v] = prev[v]
				continue
			}
			prod := int64(1)
			for _, w := range g[v] {
				if !hydrogens[w] {
					prod *= primes[prev[w]]
				}
			}
			next[v] = prod
		}
		curr = next
		prev, n = rank(prev, curr)
	}

	// Terminal hydrogens take the class of their parent.
	hasH := false
	for v := 0; v < ord; v++ {
		if hydrogens[v] {
			curr[v] = prev[g[v][0]]
			hasH = true
		}
	}
	if hasH {
		prev, _ = rank(prev, curr)
	}

	out := make([]int, ord)
	for i, r := range prev {
		out[i] = int(r)
	}
	return out, nil
}

// adjacency lists one neighbour entry per bond regardless of bond order.
func adjacency(m *molecule.Molecule) [][]int {
	g := make([][]int, m.AtomCount())
	for _, b := range m.Bonds() {
		g[b.A] = append(g[b.A], b.B)
		g[b.B] = append(g[b.B], b.A)
	}
	return g
}

// basicInvariants packs, from most to least significant: connectivity
// including implicit hydrogens, heavy connectivity, atomic number, charge
// sign, charge magnitude and total hydrogen count.  Charge is always zero.
func basicInvariants(atoms []molecule.Atom, g [][]int) ([]int64, error) {
	labels := make([]int64, len(atoms))
	for v, a := range atoms {
		elem, ok := molecule.AtomicNumber(a.Symbol)
		if !ok {
			return nil, errors.Newf(errors.CodeOracleFailure, "symmetry: unknown element %q", a.Symbol)
		}
		deg := len(g[v])
		impH := a.ImplicitH
		expH := 0
		for _, w := range g[v] {
			if z, _ := molecule.AtomicNumber(atoms[w].Symbol); z == 1 {
				expH++
			}
		}
		const chg = 0

		var label int64
		label |= int64((deg + impH) & 0xf)
		label <<= 4
		label |= int64((deg - expH) & 0xf)
		label <<= 7
		label |= int64(elem & 0x7f)
		label <<= 1
		label |= int64((chg >> 31) & 0x1)
		label <<= 2
		label |= int64(abs(chg) & 0x3)
		label <<= 4
		label |= int64((impH + expH) & 0xf)
		labels[v] = label
	}
	return labels, nil
}

func terminalHydrogens(atoms []molecule.Atom, g [][]int) []bool {
	hs := make([]bool, len(atoms))
	for v, a := range atoms {
		z, _ := molecule.AtomicNumber(a.Symbol)
		hs[v] = z == 1 && len(g[v]) == 1
	}
	return hs
}

// rank orders vertices by (prev, curr) and gives each the 1-based position
// of the first vertex of its tie group.  It returns the ranks and the number
// of distinct ranks.
func rank(prev, curr []int64) ([]int64, int) {
	ord := len(prev)
	vs := make([]int, ord)
	for i := range vs {
		vs[i] = i
	}
	less := func(a, b int) bool {
		if prev[a] != prev[b] {
			return prev[a] < prev[b]
		}
		return curr[a] < curr[b]
	}
	sort.SliceStable(vs, func(i, j int) bool { return less(vs[i], vs[j]) })

	ranks := make([]int64, ord)
	distinct := 0
	var r int64
	for i, v := range vs {
		if i == 0 || less(vs[i-1], v) {
			r = int64(i + 1)
			distinct++
		}
		ranks[v] = r
	}
	return ranks, distinct
}

// firstPrimes returns the first n primes: 2, 3, 5, 7, ...
func firstPrimes(n int) []int64 {
	primes := make([]int64, 0, n)
	for c := int64(2); len(primes) < n; c++ {
		isPrime := true
		for _, p := range primes {
			if p*p > c {
				break
			}
			if c%p == 0 {
				isPrime = false
				break
			}
		}
		if isPrime {
			primes = append(primes, c)
		}
	}
	return primes
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
