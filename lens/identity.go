package lens

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeyKind tags the two PointKey variants
type KeyKind uint8

const (
	KeyIndividual KeyKind = iota
	KeyAggregate
)

// aggregatePrefix marks sector-average keys in their text form
const aggregatePrefix = "SEC_AVG|"

// PointKey identifies a plotted point. Individual keys carry the row index and the
// cohort-specific (MRR, growth%) pair computed when the key was made; aggregate keys
// carry only the sector name. The zero-valued fields of the other variant are unused,
// which keeps PointKey comparable and usable as a map key.
type PointKey struct {
	Kind   KeyKind
	Index  int
	X      float64
	Y      float64
	Sector string
}

// IndividualKey builds the key of a customer row
func IndividualKey(index int, x, y float64) PointKey {
	return PointKey{Kind: KeyIndividual, Index: index, X: x, Y: y}
}

// AggregateKey builds the key of a sector-average point
func AggregateKey(sector string) PointKey {
	return PointKey{Kind: KeyAggregate, Sector: sector}
}

// IsAggregate reports whether k is a sector-average key
func (k PointKey) IsAggregate() bool { return k.Kind == KeyAggregate }

// String renders "SEC_AVG|<sector>" for aggregates and "<index>|<x>|<y>" otherwise
func (k PointKey) String() string {
	if k.Kind == KeyAggregate {
		return aggregatePrefix + k.Sector
	}
	return strconv.Itoa(k.Index) + "|" +
		strconv.FormatFloat(k.X, 'g', -1, 64) + "|" +
		strconv.FormatFloat(k.Y, 'g', -1, 64)
}

// ID is a stable 64-bit hash of the text form, used by web clients
func (k PointKey) ID() uint64 {
	return xxhash.Sum64String(k.String())
}

// ParsePointKey reverses String
func ParsePointKey(s string) (PointKey, error) {
	if strings.HasPrefix(s, aggregatePrefix) {
		return AggregateKey(strings.TrimPrefix(s, aggregatePrefix)), nil
	}
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return PointKey{}, fmt.Errorf("malformed point key %q", s)
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return PointKey{}, fmt.Errorf("malformed point key index %q: %w", parts[0], err)
	}
	x, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return PointKey{}, fmt.Errorf("malformed point key x %q: %w", parts[1], err)
	}
	y, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return PointKey{}, fmt.Errorf("malformed point key y %q: %w", parts[2], err)
	}
	return IndividualKey(idx, x, y), nil
}

// cohortColumns returns the base-MRR and growth source columns for a cohort mode.
// The 0-Current mapping depends on which columns the table carries.
func cohortColumns(t *Table, mode CohortMode) (mrrCol, growthCol string) {
	switch mode {
	case Cohort01:
		return ColFirstYearMRR, ColGrowth01
	case Cohort02:
		return ColSecondYearMRR, ColGrowth02
	case Cohort12:
		return ColSecondYearMRR, ColGrowth12
	}
	mrrCol = ColCurrentMRR
	if t != nil && !t.HasColumn(ColCurrentMRR) {
		mrrCol = ColFirstYearMRR
	}
	growthCol = ColGrowthToday
	if t != nil && !t.HasColumn(ColGrowthToday) {
		growthCol = ColGrowthLegacy
	}
	return mrrCol, growthCol
}

// excLicenseColumn returns the license-adjusted MRR column for a cohort mode
func excLicenseColumn(mode CohortMode) string {
	switch mode {
	case Cohort01:
		return ColFirstYearExcLicense
	case Cohort02, Cohort12:
		return ColSecondYearExcLicense
	}
	return ColExcLicenseMRR
}

// Resolve computes the identity of a record under the given cohort mode. Growth
// sources are fractions and are scaled to percent. Missing or unparseable cells
// yield (index, 0, 0); Resolve never fails.
func Resolve(t *Table, rec Record, mode CohortMode) PointKey {
	mrrCol, growthCol := cohortColumns(t, mode)
	x, okX := rec.Float(mrrCol)
	g, okY := rec.Float(growthCol)
	if !okX || !okY {
		return IndividualKey(rec.Index, 0, 0)
	}
	return IndividualKey(rec.Index, x, g*100)
}

// KeySet is a set of point keys
type KeySet map[PointKey]struct{}

// NewKeySet builds a set from the given keys
func NewKeySet(keys ...PointKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Add(k PointKey) { s[k] = struct{}{} }

func (s KeySet) Remove(k PointKey) { delete(s, k) }

func (s KeySet) Has(k PointKey) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Len() int { return len(s) }

// Toggle flips membership of k and reports whether it is now present
func (s KeySet) Toggle(k PointKey) bool {
	if s.Has(k) {
		delete(s, k)
		return false
	}
	s[k] = struct{}{}
	return true
}

// Clone returns an independent copy
func (s KeySet) Clone() KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Union returns a new set holding every key of the given sets
func Union(sets ...KeySet) KeySet {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make(KeySet, n)
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted returns the keys in a deterministic order: individual keys by row index,
// then aggregate keys by sector name
func (s KeySet) Sorted() []PointKey {
	out := make([]PointKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Kind == KeyAggregate {
			return a.Sector < b.Sector
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return out
}

// Equal reports whether both sets hold the same keys
func (s KeySet) Equal(o KeySet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o.Has(k) {
			return false
		}
	}
	return true
}
