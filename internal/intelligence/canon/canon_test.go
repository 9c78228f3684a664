package canon

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/hmd/internal/domain/molecule"
)

func build(t *testing.T, formula string, bonds ...[3]int) *molecule.Molecule {
	t.Helper()
	m, err := molecule.Build(formula)
	require.NoError(t, err)
	for _, b := range bonds {
		require.NoError(t, m.AddBond(b[0], b[1], b[2]))
	}
	return m
}

// permute relabels atom i of m as perm[i].
func permute(t *testing.T, m *molecule.Molecule, perm []int) *molecule.Molecule {
	t.Helper()
	src := m.Atoms()
	atoms := make([]molecule.Atom, len(src))
	for i, a := range src {
		atoms[perm[i]] = a
	}
	out, err := molecule.New(atoms)
	require.NoError(t, err)
	for _, b := range m.Bonds() {
		require.NoError(t, out.AddBond(perm[b.A], perm[b.B], b.Order))
	}
	return out
}

// ---------------------------------------------------------------------------
// Symmetry
// ---------------------------------------------------------------------------

func TestSymmetry_BondFreeSeed(t *testing.T) {
	labels, err := NewSymmetry().Symmetry(build(t, "C3C3C2C2C1C1"))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 3, 3, 1, 1}, labels)
}

func TestSymmetry_Chain(t *testing.T) {
	propane := build(t, "C3C2C3", [3]int{0, 1, 1}, [3]int{1, 2, 1})
	labels, err := NewSymmetry().Symmetry(propane)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 1}, labels)
}

func TestSymmetry_HexeneIntermediates(t *testing.T) {
	cases := []struct {
		name  string
		bonds [][3]int
		want  []int
	}{
		{"single 4-5", [][3]int{{4, 5, 1}}, []int{5, 5, 1, 1, 3, 3}},
		// Bond order does not enter the labels: 4=5 matches 4-5.
		{"double 4-5", [][3]int{{4, 5, 2}}, []int{5, 5, 1, 1, 3, 3}},
		{"single 2-4", [][3]int{{2, 4, 1}}, []int{4, 4, 6, 2, 3, 1}},
		{"single 0-4", [][3]int{{0, 4, 1}}, []int{6, 5, 2, 2, 4, 1}},
		{"two components", [][3]int{{4, 5, 1}, {2, 3, 1}}, []int{3, 3, 5, 5, 1, 1}},
		{"path 2-4-5", [][3]int{{2, 4, 1}, {4, 5, 1}}, []int{3, 3, 5, 1, 6, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			labels, err := NewSymmetry().Symmetry(build(t, "C3C3C2C2C1C1", tc.bonds...))
			require.NoError(t, err)
			assert.Equal(t, tc.want, labels)
		})
	}
}

func TestSymmetry_RefinementSplitsByNeighbourhood(t *testing.T) {
	// C3-C2-C2-C2-C3: the terminal carbons match, the centre differs from
	// the two carbons next to the ends.
	pentane := build(t, "C3C2C2C2C3",
		[3]int{0, 1, 1}, [3]int{1, 2, 1}, [3]int{2, 3, 1}, [3]int{3, 4, 1})
	labels, err := NewSymmetry().Symmetry(pentane)
	require.NoError(t, err)
	assert.Equal(t, labels[0], labels[4])
	assert.Equal(t, labels[1], labels[3])
	assert.NotEqual(t, labels[1], labels[2])
	assert.NotEqual(t, labels[0], labels[1])
}

func TestSymmetry_ExplicitHydrogenFollowsParent(t *testing.T) {
	m := build(t, "C2C2HH", [3]int{0, 2, 1}, [3]int{1, 3, 1}, [3]int{0, 1, 1})
	labels, err := NewSymmetry().Symmetry(m)
	require.NoError(t, err)
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[2], labels[3])
	assert.NotEqual(t, labels[0], labels[2])
}

func TestSymmetry_EmptyAndNil(t *testing.T) {
	empty, err := molecule.New(nil)
	require.NoError(t, err)
	labels, err := NewSymmetry().Symmetry(empty)
	require.NoError(t, err)
	assert.Empty(t, labels)

	_, err = NewSymmetry().Symmetry(nil)
	assert.Error(t, err)
}

func TestRank_FirstPositionOfTieGroup(t *testing.T) {
	ranks, n := rank([]int64{1, 1, 1, 1}, []int64{9, 3, 9, 1})
	assert.Equal(t, []int64{3, 2, 3, 1}, ranks)
	assert.Equal(t, 3, n)
}

func TestFirstPrimes(t *testing.T) {
	assert.Equal(t, []int64{2, 3, 5, 7, 11, 13}, firstPrimes(6))
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

func TestCertificate_Format(t *testing.T) {
	cert, err := Certificate(build(t, "C3C3", [3]int{0, 1, 1}))
	require.NoError(t, err)
	assert.Equal(t, "C3.C3|0-1:1", cert)

	empty, err := molecule.New(nil)
	require.NoError(t, err)
	cert, err = Certificate(empty)
	require.NoError(t, err)
	assert.Equal(t, "|", cert)
}

func TestIdentity_InvariantUnderRelabelling(t *testing.T) {
	oracle := NewCanonical()
	isobutane := build(t, "C3C1C3C3", [3]int{0, 1, 1}, [3]int{1, 2, 1}, [3]int{1, 3, 1})
	want, err := oracle.Identity(isobutane)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got, err := oracle.Identity(permute(t, isobutane, rng.Perm(4)))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIdentity_AlternatingRingShiftIsIsomorphic(t *testing.T) {
	a := build(t, "C1C1C1C1C1C1",
		[3]int{0, 1, 2}, [3]int{1, 2, 1}, [3]int{2, 3, 2},
		[3]int{3, 4, 1}, [3]int{4, 5, 2}, [3]int{0, 5, 1})
	b := build(t, "C1C1C1C1C1C1",
		[3]int{0, 1, 1}, [3]int{1, 2, 2}, [3]int{2, 3, 1},
		[3]int{3, 4, 2}, [3]int{4, 5, 1}, [3]int{0, 5, 2})

	ia, err := Certificate(a)
	require.NoError(t, err)
	ib, err := Certificate(b)
	require.NoError(t, err)
	assert.Equal(t, ia, ib)
}

func TestIdentity_DistinguishesTopologies(t *testing.T) {
	butene2 := build(t, "C3C3C1C1", [3]int{0, 2, 1}, [3]int{1, 3, 1}, [3]int{2, 3, 2})
	branched := build(t, "C3C3C1C1", [3]int{0, 2, 1}, [3]int{1, 2, 1}, [3]int{2, 3, 1})
	bondOrder := build(t, "C3C3C1C1", [3]int{0, 2, 1}, [3]int{1, 3, 1}, [3]int{2, 3, 1})

	ids := map[string]bool{}
	for _, m := range []*molecule.Molecule{butene2, branched, bondOrder} {
		id, err := Certificate(m)
		require.NoError(t, err)
		ids[id] = true
	}
	assert.Len(t, ids, 3)
}

func TestIdentity_HydrogenCountsMatter(t *testing.T) {
	a, err := Certificate(build(t, "C3C1", [3]int{0, 1, 1}))
	require.NoError(t, err)
	b, err := Certificate(build(t, "C2C2", [3]int{0, 1, 1}))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKey_Shape(t *testing.T) {
	k := Key("C3.C3|0-1:1")
	assert.Regexp(t, `^[0-9A-F]{14}-[0-9A-F]{10}-[0-9A-F]$`, k)
	assert.Equal(t, k, Key("C3.C3|0-1:1"))
	assert.NotEqual(t, k, Key("C2.C2|0-1:2"))
}
