package molecule

import (
	"fmt"

	"github.com/turtacn/hmd/pkg/errors"
)

// EditKind records how AddOrIncrease changed the bond between two atoms.
type EditKind int

const (
	// EditNew means a single bond was created.
	EditNew EditKind = iota + 1
	// EditIncrement means an existing bond gained one order.
	EditIncrement
)

func (k EditKind) String() string {
	switch k {
	case EditNew:
		return "new"
	case EditIncrement:
		return "increment"
	default:
		return fmt.Sprintf("EditKind(%d)", int(k))
	}
}

// BondEdit is the undo record of a single AddOrIncrease call.
type BondEdit struct {
	A    int
	B    int
	Kind EditKind
}

// AddOrIncrease bonds a and b: a new single bond when none exists, otherwise
// one more order on the existing bond.  Both atoms need an open site.
func (m *Molecule) AddOrIncrease(a, b int) (BondEdit, error) {
	if err := m.checkPair(a, b); err != nil {
		return BondEdit{}, err
	}
	if !m.IsUnsaturated(a) || !m.IsUnsaturated(b) {
		return BondEdit{}, errors.Newf(errors.CodeValenceExceeded, "bonding %d-%d exceeds valence", a, b)
	}
	if _, ok := m.Bond(a, b); ok {
		if err := m.IncreaseBondOrder(a, b); err != nil {
			return BondEdit{}, err
		}
		return BondEdit{A: a, B: b, Kind: EditIncrement}, nil
	}
	if err := m.AddBond(a, b, 1); err != nil {
		return BondEdit{}, err
	}
	return BondEdit{A: a, B: b, Kind: EditNew}, nil
}

// Revert undoes e.  Applied directly after the AddOrIncrease that produced e
// it restores the molecule exactly.
func (m *Molecule) Revert(e BondEdit) error {
	switch e.Kind {
	case EditNew:
		return m.RemoveBond(e.A, e.B)
	case EditIncrement:
		return m.DecreaseBondOrder(e.A, e.B)
	default:
		return errors.Newf(errors.CodeInvalidParam, "unknown bond edit kind %d", int(e.Kind))
	}
}
