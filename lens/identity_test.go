package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointKey_String(t *testing.T) {
	assert.Equal(t, "3|100|12.5", IndividualKey(3, 100, 12.5).String())
	assert.Equal(t, "SEC_AVG|Retail", AggregateKey("Retail").String())
}

func TestParsePointKey(t *testing.T) {
	for _, k := range []PointKey{
		IndividualKey(0, 0, 0),
		IndividualKey(7, 1234.5, -3.25),
		AggregateKey("Health Care"),
	} {
		got, err := ParsePointKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	for _, bad := range []string{"", "1|2", "x|1|2", "1|x|2", "1|2|y"} {
		_, err := ParsePointKey(bad)
		assert.Error(t, err, "ParsePointKey(%q)", bad)
	}
}

func TestPointKey_ID(t *testing.T) {
	a := IndividualKey(1, 100, 10)
	assert.Equal(t, a.ID(), IndividualKey(1, 100, 10).ID())
	assert.NotEqual(t, a.ID(), IndividualKey(2, 100, 10).ID())
	assert.NotEqual(t, AggregateKey("Retail").ID(), AggregateKey("Tech").ID())
}

func TestResolve(t *testing.T) {
	table := readFixture(t, richCSV)
	acme := table.Records[0]

	t.Run("current cohort", func(t *testing.T) {
		k := Resolve(table, acme, CohortCurrent)
		assert.Equal(t, 0, k.Index)
		assert.InDelta(t, 100, k.X, 1e-9)
		assert.InDelta(t, 10, k.Y, 1e-9)
	})

	t.Run("first year cohort", func(t *testing.T) {
		k := Resolve(table, acme, Cohort01)
		assert.InDelta(t, 80, k.X, 1e-9)
		assert.InDelta(t, 5, k.Y, 1e-9)
	})

	t.Run("missing cohort columns yield zero", func(t *testing.T) {
		k := Resolve(table, acme, Cohort12)
		assert.Equal(t, IndividualKey(0, 0, 0), k)
	})

	t.Run("legacy column names", func(t *testing.T) {
		legacy := readFixture(t, "Company Sector,Customer,First Year Ending MRR,MRR Growth\nRetail,Old,50,0.5\n")
		k := Resolve(legacy, legacy.Records[0], CohortCurrent)
		assert.InDelta(t, 50, k.X, 1e-9)
		assert.InDelta(t, 50, k.Y, 1e-9)
	})
}

func TestKeySet(t *testing.T) {
	a := IndividualKey(0, 1, 1)
	b := IndividualKey(1, 2, 2)
	agg := AggregateKey("Tech")

	s := NewKeySet(a)
	assert.True(t, s.Has(a))
	assert.False(t, s.Has(b))

	assert.True(t, s.Toggle(b))
	assert.False(t, s.Toggle(b))
	assert.Equal(t, 1, s.Len())

	clone := s.Clone()
	clone.Add(b)
	assert.False(t, s.Has(b), "clone must not share storage")

	u := Union(s, NewKeySet(b, agg), nil)
	assert.Equal(t, 3, u.Len())
	assert.Equal(t, []PointKey{a, b, agg}, u.Sorted())

	assert.True(t, NewKeySet(a, b).Equal(NewKeySet(b, a)))
	assert.False(t, NewKeySet(a).Equal(NewKeySet(b)))

	u.Remove(agg)
	assert.False(t, u.Has(agg))
}
