package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/internal/intelligence/canon"
	"github.com/turtacn/hmd/pkg/errors"
)

func mustBuild(t *testing.T, formula string) *molecule.Molecule {
	t.Helper()
	m, err := molecule.Build(formula)
	require.NoError(t, err)
	return m
}

func TestClassify_SeedClasses(t *testing.T) {
	m := mustBuild(t, "C3C3C2C2C1C1")
	labels, err := canon.NewSymmetry().Symmetry(m)
	require.NoError(t, err)

	classes, err := Classify(m, labels)
	require.NoError(t, err)
	assert.Equal(t, []Class{
		{Key: "C31", Indices: []int{4, 5}},
		{Key: "C23", Indices: []int{2, 3}},
		{Key: "C15", Indices: []int{0, 1}},
	}, classes)
	assert.Equal(t, []int{4, 5, 2, 3, 0, 1}, FlattenIndices(classes))
}

func TestClassify_HexeneIntermediates(t *testing.T) {
	double := mustBuild(t, "C3C3C2C2C1C1")
	require.NoError(t, double.AddBond(4, 5, 2))
	branch := mustBuild(t, "C3C3C2C2C1C1")
	require.NoError(t, branch.AddBond(2, 4, 1))

	classes, err := newTestEngine().Classes(double)
	require.NoError(t, err)
	assert.Equal(t, []Class{
		{Key: "C21", Indices: []int{2, 3}},
		{Key: "C15", Indices: []int{0, 1}},
		{Key: "C13", Indices: []int{4, 5}},
	}, classes)

	classes, err = newTestEngine().Classes(branch)
	require.NoError(t, err)
	assert.Equal(t, []Class{
		{Key: "C31", Indices: []int{5}},
		{Key: "C23", Indices: []int{4}},
		{Key: "C22", Indices: []int{3}},
		{Key: "C16", Indices: []int{2}},
		{Key: "C14", Indices: []int{0, 1}},
	}, classes)
}

func TestClassify_SkipsSaturatedAtoms(t *testing.T) {
	m := mustBuild(t, "C3C3C2")
	require.NoError(t, m.AddBond(0, 1, 1))

	classes, err := Classify(m, []int{1, 1, 3})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, Class{Key: "C23", Indices: []int{2}}, classes[0])
}

func TestClassify_LabelCountMismatch(t *testing.T) {
	_, err := Classify(mustBuild(t, "C3C3"), []int{1})
	assert.True(t, errors.IsCode(err, errors.CodeOracleFailure))
}

func TestClassKey(t *testing.T) {
	assert.Equal(t, "C31", ClassKey("C", 3, 1))
	assert.Equal(t, "Cl412", ClassKey("Cl", 4, 12))
}

func TestSelectTarget(t *testing.T) {
	cases := []struct {
		name  string
		class []int
		seed  int
		want  int
	}{
		{"seed absent", []int{4, 5}, 0, 4},
		{"single member containing seed", []int{0}, 0, 0},
		{"seed first", []int{0, 1}, 0, 1},
		{"seed middle", []int{2, 3, 4}, 3, 4},
		{"seed last", []int{2, 3, 4}, 4, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SelectTarget(tc.class, tc.seed))
		})
	}
}

func TestMemoryIdentitySet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdentitySet()
	added, err := s.TryAdd(ctx, "a")
	require.NoError(t, err)
	assert.True(t, added)
	added, _ = s.TryAdd(ctx, "a")
	assert.False(t, added)
	_, _ = s.TryAdd(ctx, "b")
	n, _ := s.Len(ctx)
	assert.EqualValues(t, 2, n)
}
