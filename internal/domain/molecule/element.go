package molecule

// element describes the per-symbol constants the generator needs.
type element struct {
	valence      int
	atomicNumber int
}

// elements is the fixed valence table.  Capacities are the maximum bonding of
// each element (N and P pentavalent, the halogens Cl, Br and I at their
// highest oxidation states) and are kept verbatim.
var elements = map[string]element{
	"C":  {valence: 4, atomicNumber: 6},
	"N":  {valence: 5, atomicNumber: 7},
	"O":  {valence: 2, atomicNumber: 8},
	"S":  {valence: 6, atomicNumber: 16},
	"P":  {valence: 5, atomicNumber: 15},
	"F":  {valence: 1, atomicNumber: 9},
	"I":  {valence: 7, atomicNumber: 53},
	"Cl": {valence: 5, atomicNumber: 17},
	"Br": {valence: 5, atomicNumber: 35},
	"H":  {valence: 1, atomicNumber: 1},
}

// Valence returns the bonding capacity of symbol.
func Valence(symbol string) (int, bool) {
	e, ok := elements[symbol]
	return e.valence, ok
}

// AtomicNumber returns the atomic number of symbol.
func AtomicNumber(symbol string) (int, bool) {
	e, ok := elements[symbol]
	return e.atomicNumber, ok
}

// KnownElement reports whether symbol is in the valence table.
func KnownElement(symbol string) bool {
	_, ok := elements[symbol]
	return ok
}
