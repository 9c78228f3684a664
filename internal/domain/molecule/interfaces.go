package molecule

// SymmetryOracle assigns each atom a symmetry-class label.  Atoms that are
// topologically equivalent in m receive equal labels.
type SymmetryOracle interface {
	Symmetry(m *Molecule) ([]int, error)
}

// IdentityOracle returns a canonical identity string for m.  Two molecules
// have the same identity if and only if they are isomorphic as labelled
// graphs (element, implicit hydrogens, bond orders).
type IdentityOracle interface {
	Identity(m *Molecule) (string, error)
}

// SymmetryFunc adapts a plain function to SymmetryOracle.
type SymmetryFunc func(m *Molecule) ([]int, error)

// Symmetry calls f(m).
func (f SymmetryFunc) Symmetry(m *Molecule) ([]int, error) { return f(m) }

// IdentityFunc adapts a plain function to IdentityOracle.
type IdentityFunc func(m *Molecule) (string, error)

// Identity calls f(m).
func (f IdentityFunc) Identity(m *Molecule) (string, error) { return f(m) }
