package lens

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

// basicCSV has four customers on the line growth = MRR/10
//
//	Retail: Acme (100, 10%), Bolt (200, 20%)
//	Tech:   Cogs (300, 30%, churned), Dyno (400, 40%)
const basicCSV = `Company Sector,Customer,Current MRR,MRR Growth (0-today),Churn
Retail,Acme,100,0.10,
Retail,Bolt,200,0.20,
Tech,Cogs,300,0.30,CHURN
Tech,Dyno,400,0.40,
`

// richCSV is basicCSV plus risk, license and first-year columns
const richCSV = `Company Sector,Customer,Current MRR,MRR Growth (0-today),Churn,Customer Risk,License Percent,Exc. License MRR,First Year Ending MRR,MRR Growth (0-1),DoesCustomerCompleteItsFirstYear
Retail,Acme,100,0.10,,LOW RISK,0.05,90,80,0.05,YES
Retail,Bolt,200,0.20,,HIGH RISK,0.30,150,150,0.10,NO
Tech,Cogs,300,0.30,CHURN,NO RISK,0.50,250,250,0.15,YES
Tech,Dyno,400,0.40,,MEDIUM RISK,0.10,380,300,0.20,YES
`

func readFixture(t *testing.T, csv string) *Table {
	t.Helper()
	table, err := ReadTable(strings.NewReader(csv))
	require.NoError(t, err)
	return table
}

func newFixtureSession(t *testing.T, csv string) *Session {
	t.Helper()
	return NewSession(readFixture(t, csv), DefaultFilterConfig(), ViewportConfig{})
}

// keyOf returns the current-cohort key of the named customer
func keyOf(t *testing.T, table *Table, customer string) PointKey {
	t.Helper()
	for _, rec := range table.Records {
		if rec.Customer() == customer {
			return Resolve(table, rec, CohortCurrent)
		}
	}
	t.Fatalf("no customer %q in fixture", customer)
	return PointKey{}
}

// customers lists the visible customer names in row order
func customers(v *View) []string {
	out := make([]string, 0, len(v.Points))
	for _, p := range v.Points {
		out = append(out, p.Customer)
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }

func bound(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}
