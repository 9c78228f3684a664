package molecule

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/turtacn/hmd/pkg/errors"
)

// tokenPattern is one atom token: an element symbol followed by an optional
// implicit hydrogen count.
var tokenPattern = regexp.MustCompile(`^([A-Z][a-z]?)([0-9]*)$`)

// SplitFormula splits the molecular information string before every
// uppercase letter: "C3ClBr2" → ["C3", "Cl", "Br2"].
func SplitFormula(formula string) []string {
	var tokens []string
	start := 0
	for i, r := range formula {
		if i > 0 && unicode.IsUpper(r) {
			tokens = append(tokens, formula[start:i])
			start = i
		}
	}
	if start < len(formula) {
		tokens = append(tokens, formula[start:])
	}
	return tokens
}

// ParseAtom parses one token such as "C3" or "Cl".
func ParseAtom(token string) (Atom, error) {
	match := tokenPattern.FindStringSubmatch(token)
	if match == nil {
		return Atom{}, errors.New(errors.CodeMalformedFormula, "malformed atom token").WithDetail(token)
	}
	a := Atom{Symbol: match[1]}
	if !KnownElement(a.Symbol) {
		return Atom{}, errors.Newf(errors.CodeUnknownElement, "unknown element symbol %q", a.Symbol).WithDetail(token)
	}
	if match[2] != "" {
		h, err := strconv.Atoi(match[2])
		if err != nil {
			return Atom{}, errors.Wrap(err, errors.CodeMalformedFormula, "bad hydrogen count").WithDetail(token)
		}
		a.ImplicitH = h
	}
	a.Valence, _ = Valence(a.Symbol)
	return a, nil
}

// Build parses a molecular information string such as "C3C3C2C2C1C1" into a
// bond-free Molecule.  Atoms keep the order of their tokens.
func Build(formula string) (*Molecule, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return nil, errors.New(errors.ErrCodeEmptyFormula, "molecular information must not be empty")
	}
	tokens := SplitFormula(formula)
	atoms := make([]Atom, 0, len(tokens))
	for _, tok := range tokens {
		a, err := ParseAtom(tok)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, a)
	}
	return New(atoms)
}
