package generation

import (
	"fmt"
	"sort"

	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/pkg/errors"
)

// Class is one equivalence class: unsaturated atoms sharing element, number
// of open sites and symmetry label.
type Class struct {
	Key     string `json:"key"`
	Indices []int  `json:"indices"`
}

// ClassKey renders the class key of an atom, e.g. "C31" for a carbon with 3
// open sites and symmetry label 1.
func ClassKey(symbol string, open, label int) string {
	return fmt.Sprintf("%s%d%d", symbol, open, label)
}

// Classify groups the unsaturated atoms of m by ClassKey.  Classes are
// returned in descending key order (plain string comparison); indices inside
// a class ascend.
func Classify(m *molecule.Molecule, labels []int) ([]Class, error) {
	if len(labels) != m.AtomCount() {
		return nil, errors.Newf(errors.CodeOracleFailure,
			"symmetry labels cover %d atoms, molecule has %d", len(labels), m.AtomCount())
	}
	byKey := make(map[string][]int)
	for i, a := range m.Atoms() {
		open := m.OpenSites(i)
		if open <= 0 {
			continue
		}
		k := ClassKey(a.Symbol, open, labels[i])
		byKey[k] = append(byKey[k], i)
	}

	classes := make([]Class, 0, len(byKey))
	for k, idx := range byKey {
		classes = append(classes, Class{Key: k, Indices: idx})
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Key > classes[j].Key })
	return classes, nil
}

// FlattenIndices concatenates the class indices in class order.
func FlattenIndices(classes []Class) []int {
	var out []int
	for _, c := range classes {
		out = append(out, c.Indices...)
	}
	return out
}

// SelectTarget picks the bonding partner of seed from class.  When seed is a
// member of a class with more than one atom the partner is the next member,
// or the previous one when seed is last; otherwise it is the first member.
func SelectTarget(class []int, seed int) int {
	if len(class) > 1 {
		for i, v := range class {
			if v != seed {
				continue
			}
			if i == len(class)-1 {
				return class[i-1]
			}
			return class[i+1]
		}
	}
	return class[0]
}
