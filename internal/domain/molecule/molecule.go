// Package molecule provides the graph model the structure generator works on:
// atoms with implicit hydrogens, bonds with integer order, the reversible bond
// mutator and the oracle contracts for symmetry classes and canonical
// identity.  A Molecule is a plain value; Clone gives an independent copy.
package molecule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/hmd/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Value Objects
// ─────────────────────────────────────────────────────────────────────────────

// Atom is a heavy atom with its implicit hydrogen count.
type Atom struct {
	Symbol    string `json:"symbol"`
	ImplicitH int    `json:"implicit_h"`
	Valence   int    `json:"valence"`
}

// Bond joins atoms A < B with an integer order ≥ 1.
type Bond struct {
	A     int `json:"a"`
	B     int `json:"b"`
	Order int `json:"order"`
}

// Other returns the atom on the opposite end of the bond from i.
func (b Bond) Other(i int) int {
	if b.A == i {
		return b.B
	}
	return b.A
}

func normalize(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// ─────────────────────────────────────────────────────────────────────────────
// Molecule
// ─────────────────────────────────────────────────────────────────────────────

// Molecule is an atom list plus the bonds between them.  Bonds are kept in
// insertion order; removing the most recently added bond restores the
// previous list exactly.
type Molecule struct {
	atoms []Atom
	bonds []Bond
}

// New constructs a bond-free Molecule from atoms.  Every symbol must be in the
// valence table and no atom may carry more hydrogens than its capacity.
func New(atoms []Atom) (*Molecule, error) {
	m := &Molecule{atoms: make([]Atom, 0, len(atoms))}
	for i, a := range atoms {
		v, ok := Valence(a.Symbol)
		if !ok {
			return nil, errors.Newf(errors.CodeUnknownElement, "unknown element symbol %q", a.Symbol).
				WithDetail(fmt.Sprintf("atom=%d", i))
		}
		if a.ImplicitH < 0 || a.ImplicitH > v {
			return nil, errors.Newf(errors.CodeValenceExceeded,
				"atom %d (%s) carries %d hydrogens, capacity is %d", i, a.Symbol, a.ImplicitH, v)
		}
		a.Valence = v
		m.atoms = append(m.atoms, a)
	}
	return m, nil
}

// AtomCount returns the number of heavy atoms.
func (m *Molecule) AtomCount() int { return len(m.atoms) }

// BondCount returns the number of bonds.
func (m *Molecule) BondCount() int { return len(m.bonds) }

// CheckIndex returns a CodeAtomIndexOutOfRange error when i is not an atom.
func (m *Molecule) CheckIndex(i int) error {
	if i < 0 || i >= len(m.atoms) {
		return errors.Newf(errors.CodeAtomIndexOutOfRange, "atom index %d out of range [0,%d)", i, len(m.atoms))
	}
	return nil
}

// Atom returns the atom at index i.
func (m *Molecule) Atom(i int) (Atom, error) {
	if err := m.CheckIndex(i); err != nil {
		return Atom{}, err
	}
	return m.atoms[i], nil
}

// Atoms returns a copy of the atom list.
func (m *Molecule) Atoms() []Atom {
	out := make([]Atom, len(m.atoms))
	copy(out, m.atoms)
	return out
}

// Bonds returns a copy of the bond list in insertion order.
func (m *Molecule) Bonds() []Bond {
	out := make([]Bond, len(m.bonds))
	copy(out, m.bonds)
	return out
}

// TotalImplicitH sums the implicit hydrogen counts.
func (m *Molecule) TotalImplicitH() int {
	n := 0
	for _, a := range m.atoms {
		n += a.ImplicitH
	}
	return n
}

func (m *Molecule) bondIndex(a, b int) int {
	a, b = normalize(a, b)
	for i, bd := range m.bonds {
		if bd.A == a && bd.B == b {
			return i
		}
	}
	return -1
}

// Bond returns the bond between a and b, if any.
func (m *Molecule) Bond(a, b int) (Bond, bool) {
	if i := m.bondIndex(a, b); i >= 0 {
		return m.bonds[i], true
	}
	return Bond{}, false
}

func (m *Molecule) checkPair(a, b int) error {
	if err := m.CheckIndex(a); err != nil {
		return err
	}
	if err := m.CheckIndex(b); err != nil {
		return err
	}
	if a == b {
		return errors.InvalidParam("self bonds are not allowed").WithDetail(fmt.Sprintf("atom=%d", a))
	}
	return nil
}

// AddBond appends a bond of the given order between a and b.
func (m *Molecule) AddBond(a, b, order int) error {
	if err := m.checkPair(a, b); err != nil {
		return err
	}
	if order < 1 {
		return errors.Newf(errors.CodeInvalidParam, "bond order must be ≥ 1, got %d", order)
	}
	if m.bondIndex(a, b) >= 0 {
		return errors.Newf(errors.CodeConflict, "bond %d-%d already exists", a, b)
	}
	a, b = normalize(a, b)
	m.bonds = append(m.bonds, Bond{A: a, B: b, Order: order})
	return nil
}

// IncreaseBondOrder raises the order of the existing bond a-b by one.
func (m *Molecule) IncreaseBondOrder(a, b int) error {
	if err := m.checkPair(a, b); err != nil {
		return err
	}
	i := m.bondIndex(a, b)
	if i < 0 {
		return errors.Newf(errors.CodeBondNotFound, "no bond between %d and %d", a, b)
	}
	m.bonds[i].Order++
	return nil
}

// DecreaseBondOrder lowers the order of the bond a-b by one.  A single bond
// cannot be decreased; use RemoveBond.
func (m *Molecule) DecreaseBondOrder(a, b int) error {
	if err := m.checkPair(a, b); err != nil {
		return err
	}
	i := m.bondIndex(a, b)
	if i < 0 {
		return errors.Newf(errors.CodeBondNotFound, "no bond between %d and %d", a, b)
	}
	if m.bonds[i].Order <= 1 {
		return errors.Newf(errors.CodeInvalidParam, "bond %d-%d is already single", a, b)
	}
	m.bonds[i].Order--
	return nil
}

// RemoveBond deletes the bond a-b, keeping the order of the remaining bonds.
func (m *Molecule) RemoveBond(a, b int) error {
	if err := m.checkPair(a, b); err != nil {
		return err
	}
	i := m.bondIndex(a, b)
	if i < 0 {
		return errors.Newf(errors.CodeBondNotFound, "no bond between %d and %d", a, b)
	}
	m.bonds = append(m.bonds[:i], m.bonds[i+1:]...)
	return nil
}

// Clone returns a deep copy; mutating the copy never affects m.
func (m *Molecule) Clone() *Molecule {
	return &Molecule{atoms: m.Atoms(), bonds: m.Bonds()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Saturation helpers.  i must be a valid atom index.
// ─────────────────────────────────────────────────────────────────────────────

// OrderSum is the sum of the orders of the bonds incident to i.
func (m *Molecule) OrderSum(i int) int {
	sum := 0
	for _, b := range m.bonds {
		if b.A == i || b.B == i {
			sum += b.Order
		}
	}
	return sum
}

// OpenSites is the remaining bonding capacity of atom i.
func (m *Molecule) OpenSites(i int) int {
	a := m.atoms[i]
	return a.Valence - m.OrderSum(i) - a.ImplicitH
}

// IsUnsaturated reports whether atom i still has open sites.
func (m *Molecule) IsUnsaturated(i int) bool {
	return m.OpenSites(i) > 0
}

// IsSaturated reports whether atom i is bonded to exactly its capacity.
func (m *Molecule) IsSaturated(i int) bool {
	return m.OpenSites(i) == 0
}

// FullySaturated reports whether every atom is saturated.
func (m *Molecule) FullySaturated() bool {
	for i := range m.atoms {
		if !m.IsSaturated(i) {
			return false
		}
	}
	return true
}

// Neighbors lists the atoms bonded to i, one entry per bond regardless of
// order, in bond insertion order.
func (m *Molecule) Neighbors(i int) []int {
	var out []int
	for _, b := range m.bonds {
		if b.A == i || b.B == i {
			out = append(out, b.Other(i))
		}
	}
	return out
}

// Degree is the number of bonds incident to i.
func (m *Molecule) Degree(i int) int {
	d := 0
	for _, b := range m.bonds {
		if b.A == i || b.B == i {
			d++
		}
	}
	return d
}

// Formula renders the atoms back into the molecular information string.
func (m *Molecule) Formula() string {
	var sb strings.Builder
	for _, a := range m.atoms {
		sb.WriteString(a.Symbol)
		if a.ImplicitH > 0 {
			sb.WriteString(strconv.Itoa(a.ImplicitH))
		}
	}
	return sb.String()
}

// String implements fmt.Stringer for logs and test failures.
func (m *Molecule) String() string {
	var sb strings.Builder
	sb.WriteString(m.Formula())
	for _, b := range m.bonds {
		fmt.Fprintf(&sb, " %d-%d:%d", b.A, b.B, b.Order)
	}
	return sb.String()
}
