package lens

import (
	"fmt"
	"io"
	"time"
)

// Summary is a compact description of the current view, published to MQTT and
// WebSocket clients and printed by the CLI
type Summary struct {
	Source            string        `json:"source"`
	Scope             string        `json:"scope"`
	Cohort            CohortMode    `json:"cohort"`
	Visible           int           `json:"visible"`
	Customers         int           `json:"customers"`
	Rows              int           `json:"rows"`
	Hidden            int           `json:"hidden"`
	ManualRemoved     int           `json:"manualRemoved"`
	LicenseRemoved    int           `json:"licenseRemoved"`
	RegressionRemoved int           `json:"regressionRemoved"`
	Selected          int           `json:"selected"`
	Line              *Line         `json:"line,omitempty"`
	Center            XY            `json:"center"`
	Bounds            [4]float64    `json:"bounds"` // xmin, ymin, xmax, ymax
	Sectors           []SectorStats `json:"sectors"`
	UndoDepth         int           `json:"undoDepth"`
	Timestamp         time.Time     `json:"timestamp"`
}

// Summary describes the session's current view
func (s *Session) Summary() Summary {
	v := s.view
	b := s.viewport.Bounds
	sum := Summary{
		Scope:             s.scope.String(),
		Cohort:            s.config.Cohort,
		Visible:           len(v.Points),
		Customers:         v.TotalCustomers,
		Rows:              s.table.Len(),
		Hidden:            v.Hidden.Len(),
		ManualRemoved:     s.manual.Len(),
		LicenseRemoved:    s.license.Len(),
		RegressionRemoved: v.RegressionRemoved.Len(),
		Selected:          s.selector.Selected.Len(),
		Line:              v.Line,
		Center:            v.CenterData,
		Bounds:            [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()},
		Sectors:           v.Sectors,
		UndoDepth:         s.undo.Len(),
		Timestamp:         time.Now(),
	}
	if s.table != nil {
		sum.Source = s.table.Source
	}
	if sum.Sectors == nil {
		sum.Sectors = make([]SectorStats, 0)
	}
	return sum
}

// WriteText prints the summary in the CLI's plain format
func (s Summary) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Source:     %s\n", s.Source)
	fmt.Fprintf(w, "Scope:      %s (cohort %s)\n", s.Scope, s.Cohort)
	fmt.Fprintf(w, "Visible:    %d points, %d customers of %d rows\n", s.Visible, s.Customers, s.Rows)
	fmt.Fprintf(w, "Hidden:     %d (manual %d, license %d), trend filter removed %d\n",
		s.Hidden, s.ManualRemoved, s.LicenseRemoved, s.RegressionRemoved)
	if s.Line != nil {
		fmt.Fprintf(w, "Trend:      %s (R² %.3f)\n", s.Line, s.Line.RSquared)
	} else {
		fmt.Fprintf(w, "Trend:      none\n")
	}
	fmt.Fprintf(w, "Center:     MRR %.2f, growth %.2f%%\n", s.Center.MRR, s.Center.Growth)
	for _, st := range s.Sectors {
		fmt.Fprintf(w, "  %-24s %4d customers  MRR %12.2f  churn %d (%.1f%%)\n",
			st.Sector, st.Count, st.MRR, st.ChurnCount, st.ChurnPct)
	}
}
