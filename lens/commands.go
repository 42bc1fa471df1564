package lens

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LicenseCommand is the payload of the license command
type LicenseCommand struct {
	Mode      LicenseMode `json:"mode"`
	Threshold string      `json:"threshold"`
	Reverse   bool        `json:"reverse"`
}

// ApplyCommand runs one named session command. Payloads are plain text except
// for license (LicenseCommand JSON) and settings (FilterConfig JSON).
func ApplyCommand(s *Session, command string, payload []byte) error {
	text := strings.TrimSpace(string(payload))
	switch command {
	case "scope":
		sc := ParseScope(text)
		if sc.Kind == ScopeSector && !hasSector(s.Table(), sc.Sector) {
			return fmt.Errorf("unknown sector %q", sc.Sector)
		}
		s.SetScope(sc)
	case "cohort":
		return s.SetCohort(CohortMode(text))
	case "churn":
		return s.SetChurnMode(ChurnMode(text))
	case "regression-filter":
		return s.SetRegressionFilter(RegressionFilter(text))
	case "license":
		var cmd LicenseCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("parsing license command: %w", err)
		}
		return s.SetLicense(cmd.Mode, cmd.Threshold, cmd.Reverse)
	case "settings":
		var cfg FilterConfig
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return fmt.Errorf("parsing settings: %w", err)
		}
		return s.ApplySettings(cfg)
	case "swap":
		on, err := strconv.ParseBool(text)
		if err != nil {
			return fmt.Errorf("swap expects true or false, got %q", text)
		}
		s.SetSwapAxes(on)
	case "focus":
		s.SetFocus(text)
	case "delete":
		s.DeleteSelected()
	case "invert":
		s.InvertSelection()
	case "clear-selection":
		s.ClearSelection()
	case "undo":
		s.Undo()
	case "fit":
		s.FitToData()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// hasSector reports whether any row of t belongs to sector
func hasSector(t *Table, sector string) bool {
	for _, s := range t.Sectors() {
		if s == sector {
			return true
		}
	}
	return false
}
