package lens

import (
	"math"
	"strings"
)

// Column names of the customer table
const (
	ColSector               = "Company Sector"
	ColCustomer             = "Customer"
	ColCurrentMRR           = "Current MRR"
	ColFirstYearMRR         = "First Year Ending MRR"
	ColSecondYearMRR        = "Second Year Ending MRR"
	ColGrowthToday          = "MRR Growth (0-today)"
	ColGrowthLegacy         = "MRR Growth"
	ColGrowth01             = "MRR Growth (0-1)"
	ColGrowth02             = "MRR Growth (0-2)"
	ColGrowth12             = "MRR Growth(1-2)"
	ColChurn                = "Churn"
	ColChurnedMRR           = "Churned MRR"
	ColRisk                 = "Customer Risk"
	ColLicensePercent       = "License Percent"
	ColFirstYearComplete    = "DoesCustomerCompleteItsFirstYear"
	ColSecondYearComplete   = "DoesCustomersCompleteItsSecondYear"
	ColExcLicenseMRR        = "Exc. License MRR"
	ColFirstYearExcLicense  = "First Year Ending Exc. License MRR"
	ColSecondYearExcLicense = "Second Year Ending Exc. License MRR"
)

// CohortMode selects the customer-age window that supplies MRR and growth
type CohortMode string

const (
	CohortCurrent CohortMode = "0-Current"
	Cohort01      CohortMode = "0-1"
	Cohort02      CohortMode = "0-2"
	Cohort12      CohortMode = "1-2"
)

// Valid reports whether m is one of the known cohort modes
func (m CohortMode) Valid() bool {
	switch m {
	case CohortCurrent, Cohort01, Cohort02, Cohort12:
		return true
	}
	return false
}

// ChurnMode controls how churned customers are treated
type ChurnMode string

const (
	ChurnInclude ChurnMode = "include"
	ChurnExclude ChurnMode = "exclude"
	ChurnOnly    ChurnMode = "only"
)

func (m ChurnMode) Valid() bool {
	return m == ChurnInclude || m == ChurnExclude || m == ChurnOnly
}

// LimitMode toggles the MRR/growth bounds
type LimitMode string

const (
	LimitNone    LimitMode = "no_limit"
	LimitEnabled LimitMode = "limit"
)

func (m LimitMode) Valid() bool {
	return m == LimitNone || m == LimitEnabled
}

// RegressionFilter keeps one side of the trend line
type RegressionFilter string

const (
	RegressionNone  RegressionFilter = "none"
	RegressionAbove RegressionFilter = "above"
	RegressionBelow RegressionFilter = "below"
)

func (f RegressionFilter) Valid() bool {
	return f == RegressionNone || f == RegressionAbove || f == RegressionBelow
}

// LicenseMode is "Inc." (license revenue included) or "Exc." (excluded)
type LicenseMode string

const (
	LicenseInc LicenseMode = "Inc."
	LicenseExc LicenseMode = "Exc."
)

func (m LicenseMode) Valid() bool {
	return m == LicenseInc || m == LicenseExc
}

// RiskCategory is the value of the Customer Risk column
type RiskCategory string

const (
	RiskNone   RiskCategory = "NO RISK"
	RiskLow    RiskCategory = "LOW RISK"
	RiskMedium RiskCategory = "MEDIUM RISK"
	RiskHigh   RiskCategory = "HIGH RISK"
	RiskBooked RiskCategory = "BOOKED CHURN"
)

// RiskVisibility holds one visibility flag per risk category
type RiskVisibility struct {
	No     bool `yaml:"no" json:"no"`
	Low    bool `yaml:"low" json:"low"`
	Medium bool `yaml:"medium" json:"medium"`
	High   bool `yaml:"high" json:"high"`
	Booked bool `yaml:"booked" json:"booked"`
}

// Allows reports whether rows of the given category stay visible.
// Unknown or empty categories are always allowed.
func (v RiskVisibility) Allows(c RiskCategory) bool {
	switch c {
	case RiskNone:
		return v.No
	case RiskLow:
		return v.Low
	case RiskMedium:
		return v.Medium
	case RiskHigh:
		return v.High
	case RiskBooked:
		return v.Booked
	}
	return true
}

// FilterConfig is the complete user-adjustable filter state. It is a plain value:
// copying it yields an independent snapshot (the pointer fields are never mutated
// in place, only replaced).
type FilterConfig struct {
	Limit     LimitMode `yaml:"limit" json:"limit"`
	MRRMin    *float64  `yaml:"mrrMin,omitempty" json:"mrrMin,omitempty"`
	MRRMax    *float64  `yaml:"mrrMax,omitempty" json:"mrrMax,omitempty"`
	GrowthMin *float64  `yaml:"growthMin,omitempty" json:"growthMin,omitempty"`
	GrowthMax *float64  `yaml:"growthMax,omitempty" json:"growthMax,omitempty"`

	Cohort CohortMode `yaml:"cohort" json:"cohort"`
	Churn  ChurnMode  `yaml:"churn" json:"churn"`

	RiskView bool           `yaml:"riskView" json:"riskView"`
	Risk     RiskVisibility `yaml:"risk" json:"risk"`

	SwapAxes bool `yaml:"swapAxes" json:"swapAxes"`

	License             LicenseMode `yaml:"license" json:"license"`
	LicenseThreshold    float64     `yaml:"licenseThreshold" json:"licenseThreshold"` // percent
	ReverseLicense      bool        `yaml:"reverseLicense" json:"reverseLicense"`
	UseExcLicenseValues bool        `yaml:"useExcLicenseValues" json:"useExcLicenseValues"`

	ShowRegression   bool             `yaml:"showRegression" json:"showRegression"`
	FixRegression    bool             `yaml:"fixRegression" json:"fixRegression"`
	RegressionFilter RegressionFilter `yaml:"regressionFilter" json:"regressionFilter"`
	FixedLine        *Line            `yaml:"fixedLine,omitempty" json:"fixedLine,omitempty"`

	FixedAxis   bool `yaml:"fixedAxis" json:"fixedAxis"`
	FixedCenter *XY  `yaml:"fixedCenter,omitempty" json:"fixedCenter,omitempty"`

	RiskColormap            bool    `yaml:"riskColormap" json:"riskColormap"`
	RiskColormapWeighted    bool    `yaml:"riskColormapWeighted" json:"riskColormapWeighted"`
	RiskColormapWeightPower float64 `yaml:"riskColormapWeightPower" json:"riskColormapWeightPower"`
}

// XY is an (MRR, growth) pair in data orientation, before any axis swap
type XY struct {
	MRR    float64 `yaml:"mrr" json:"mrr"`
	Growth float64 `yaml:"growth" json:"growth"`
}

// DefaultFilterConfig returns the configuration a fresh session starts with
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Limit:                   LimitNone,
		Cohort:                  CohortCurrent,
		Churn:                   ChurnInclude,
		Risk:                    RiskVisibility{No: true, Low: true, Medium: true, High: true, Booked: true},
		License:                 LicenseInc,
		RegressionFilter:        RegressionNone,
		RiskColormapWeighted:    true,
		RiskColormapWeightPower: 1.0,
	}
}

// ScopeKind distinguishes the three sector scopes
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeSector
	ScopeAggregate
)

// Scope labels used by the sector selector
const (
	ScopeAllLabel       = "All"
	ScopeAggregateLabel = "Sector Avg"
)

// Scope is the sector restriction of the view
type Scope struct {
	Kind   ScopeKind
	Sector string
}

// ParseScope maps a selector label to a Scope
func ParseScope(label string) Scope {
	switch strings.TrimSpace(label) {
	case "", ScopeAllLabel:
		return Scope{Kind: ScopeAll}
	case ScopeAggregateLabel:
		return Scope{Kind: ScopeAggregate}
	}
	return Scope{Kind: ScopeSector, Sector: strings.TrimSpace(label)}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeSector:
		return s.Sector
	case ScopeAggregate:
		return ScopeAggregateLabel
	}
	return ScopeAllLabel
}

// Record is one row of the customer table. Cells are kept as raw text.
type Record struct {
	Index int
	cells map[string]string
}

// NewRecord builds a record from column -> cell text
func NewRecord(index int, cells map[string]string) Record {
	return Record{Index: index, cells: cells}
}

// Text returns the trimmed cell text, or "" when the column is absent
func (r Record) Text(col string) string {
	return strings.TrimSpace(r.cells[col])
}

// Float parses a numeric cell. ok is false for missing, empty or unparseable cells
// and for NaN/Inf values.
func (r Record) Float(col string) (float64, bool) {
	s, present := r.cells[col]
	if !present {
		return 0, false
	}
	v, ok := parseCell(s)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Sector returns the Company Sector cell
func (r Record) Sector() string { return r.Text(ColSector) }

// Customer returns the Customer cell
func (r Record) Customer() string { return r.Text(ColCustomer) }

// Churned reports whether the Churn column reads CHURN
func (r Record) Churned() bool {
	return strings.EqualFold(r.Text(ColChurn), "CHURN")
}

// Risk returns the upper-cased risk category, or "" when absent
func (r Record) Risk() RiskCategory {
	return RiskCategory(strings.ToUpper(r.Text(ColRisk)))
}

// flagYes reports whether a completion flag column reads YES
func (r Record) flagYes(col string) bool {
	return strings.EqualFold(r.Text(col), "YES")
}

// Table is the loaded customer dataset
type Table struct {
	Source  string
	Columns []string
	Records []Record
	present map[string]bool
}

// NewTable builds a table and indexes its column set
func NewTable(source string, columns []string, records []Record) *Table {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	return &Table{Source: source, Columns: columns, Records: records, present: present}
}

// HasColumn reports whether the table carries the named column
func (t *Table) HasColumn(col string) bool {
	if t == nil {
		return false
	}
	return t.present[col]
}

// Len returns the number of records
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Sectors returns the distinct sector names in first-seen order
func (t *Table) Sectors() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Records {
		s := r.Sector()
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
