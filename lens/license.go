package lens

// LicenseRemoved computes the license-threshold exclusion set. It only applies in
// Exc. mode. The threshold is a percent; License Percent cells are fractions.
// Churned rows, cells without digits and unparseable cells are skipped. Normally
// rows above the threshold are removed; with ReverseLicense set, rows at or below it.
func LicenseRemoved(t *Table, cfg FilterConfig) KeySet {
	out := make(KeySet)
	if cfg.License != LicenseExc || !t.HasColumn(ColLicensePercent) {
		return out
	}

	threshold := cfg.LicenseThreshold / 100.0
	hasChurn := t.HasColumn(ColChurn)

	for _, rec := range t.Records {
		if hasChurn && rec.Churned() {
			continue
		}
		raw := rec.Text(ColLicensePercent)
		if !hasDigit(raw) {
			continue
		}
		v, ok := parseCell(raw)
		if !ok {
			continue
		}

		remove := v > threshold
		if cfg.ReverseLicense {
			remove = v <= threshold
		}
		if remove {
			out.Add(Resolve(t, rec, cfg.Cohort))
		}
	}
	return out
}
