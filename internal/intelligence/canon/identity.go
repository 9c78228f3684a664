package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/pkg/errors"
)

// ---------------------------------------------------------------------------
// Canonical identity oracle
// ---------------------------------------------------------------------------

// Canonical derives the identity of a molecule from a canonical labelling
// found by individualisation and refinement: colours start from element,
// implicit hydrogens, degree and incident bond orders, are refined by the
// sorted (colour, order) multiset of the neighbours, and every vertex of the
// first non-singleton cell is individualised in turn.  The identity is the
// smallest certificate over all discrete leaves.
type Canonical struct{}

// NewCanonical returns the canonical identity oracle.
func NewCanonical() *Canonical { return &Canonical{} }

var _ molecule.IdentityOracle = (*Canonical)(nil)

// Identity implements molecule.IdentityOracle.
func (c *Canonical) Identity(m *molecule.Molecule) (string, error) {
	return Certificate(m)
}

type edge struct {
	to    int
	order int
}

type canonizer struct {
	atoms []molecule.Atom
	adj   [][]edge
	best  string
	found bool
}

// Certificate returns the canonical certificate of m:
//
//	C3.C2.C2.C3|0-1:1,0-3:1,1-2:2
//
// atoms as symbol plus hydrogen count in canonical order, then the bonds in
// canonical numbering sorted by endpoint.
func Certificate(m *molecule.Molecule) (string, error) {
	if m == nil {
		return "", errors.New(errors.CodeOracleFailure, "identity: nil molecule")
	}
	c := &canonizer{atoms: m.Atoms(), adj: make([][]edge, m.AtomCount())}
	for _, b := range m.Bonds() {
		c.adj[b.A] = append(c.adj[b.A], edge{to: b.B, order: b.Order})
		c.adj[b.B] = append(c.adj[b.B], edge{to: b.A, order: b.Order})
	}
	if len(c.atoms) == 0 {
		return "|", nil
	}
	c.search(c.initialColours())
	if !c.found {
		return "", errors.New(errors.CodeOracleFailure, "identity: no canonical labelling found")
	}
	return c.best, nil
}

// Key condenses an identity into a fixed-width InChIKey-shaped digest
// (14-10-1 upper-case hex groups) for external stores.
func Key(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))
	return h[:14] + "-" + h[14:24] + "-" + h[24:25]
}

func (c *canonizer) initialColours() []int {
	sigs := make([][]int, len(c.atoms))
	for v, a := range c.atoms {
		z, _ := molecule.AtomicNumber(a.Symbol)
		orders := make([]int, 0, len(c.adj[v]))
		for _, e := range c.adj[v] {
			orders = append(orders, e.order)
		}
		sort.Ints(orders)
		sigs[v] = append([]int{z, a.ImplicitH, len(c.adj[v])}, orders...)
	}
	return denseRank(sigs)
}

// refine splits colour classes until neighbour signatures no longer
// distinguish any further vertices.
func (c *canonizer) refine(colours []int) []int {
	cells := countCells(colours)
	for {
		sigs := make([][]int, len(colours))
		for v := range colours {
			pairs := make([][2]int, 0, len(c.adj[v]))
			for _, e := range c.adj[v] {
				pairs = append(pairs, [2]int{colours[e.to], e.order})
			}
			sort.Slice(pairs, func(i, j int) bool {
				if pairs[i][0] != pairs[j][0] {
					return pairs[i][0] < pairs[j][0]
				}
				return pairs[i][1] < pairs[j][1]
			})
			sig := make([]int, 0, 1+2*len(pairs))
			sig = append(sig, colours[v])
			for _, p := range pairs {
				sig = append(sig, p[0], p[1])
			}
			sigs[v] = sig
		}
		next := denseRank(sigs)
		n := countCells(next)
		if n == cells {
			return next
		}
		colours, cells = next, n
	}
}

func (c *canonizer) search(colours []int) {
	colours = c.refine(colours)

	target := -1
	seen := make(map[int]int, len(colours))
	for _, col := range colours {
		seen[col]++
	}
	for col, n := range seen {
		if n > 1 && (target < 0 || col < target) {
			target = col
		}
	}
	if target < 0 {
		cert := c.certificate(colours)
		if !c.found || cert < c.best {
			c.best, c.found = cert, true
		}
		return
	}

	for v, col := range colours {
		if col != target {
			continue
		}
		c.search(individualise(colours, v))
	}
}

// individualise places v in a singleton cell directly before the rest of
// its former cell.
func individualise(colours []int, v int) []int {
	sigs := make([][]int, len(colours))
	for u, col := range colours {
		k := 2 * col
		if col == colours[v] && u != v {
			k++
		}
		sigs[u] = []int{k}
	}
	return denseRank(sigs)
}

func (c *canonizer) certificate(colours []int) string {
	n := len(colours)
	order := make([]int, n)
	for v, pos := range colours {
		order[pos] = v
	}

	var sb strings.Builder
	for i, v := range order {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(c.atoms[v].Symbol)
		sb.WriteString(strconv.Itoa(c.atoms[v].ImplicitH))
	}
	sb.WriteByte('|')

	type cbond struct{ a, b, order int }
	var bonds []cbond
	for v := range c.adj {
		for _, e := range c.adj[v] {
			a, b := colours[v], colours[e.to]
			if a < b {
				bonds = append(bonds, cbond{a, b, e.order})
			}
		}
	}
	sort.Slice(bonds, func(i, j int) bool {
		if bonds[i].a != bonds[j].a {
			return bonds[i].a < bonds[j].a
		}
		return bonds[i].b < bonds[j].b
	})
	for i, b := range bonds {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(b.a))
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(b.b))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(b.order))
	}
	return sb.String()
}

// denseRank maps each signature to its 0-based rank among the distinct
// signatures in lexicographic order.
func denseRank(sigs [][]int) []int {
	idx := make([]int, len(sigs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return lessInts(sigs[idx[i]], sigs[idx[j]]) })

	out := make([]int, len(sigs))
	r := -1
	for i, v := range idx {
		if i == 0 || lessInts(sigs[idx[i-1]], sigs[v]) {
			r++
		}
		out[v] = r
	}
	return out
}

func lessInts(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func countCells(colours []int) int {
	seen := make(map[int]struct{}, len(colours))
	for _, c := range colours {
		seen[c] = struct{}{}
	}
	return len(seen)
}
