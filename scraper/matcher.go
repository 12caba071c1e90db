package scraper

import (
	"strings"

	"ecotrade_flows/models"
)

// SelectRows returns the rows to tick. A row qualifies when it is selectable
// and its name contains one of codes (case-sensitive). With a window, the
// row date must also fall inside it; rows whose date does not parse are
// skipped.
func SelectRows(rows []models.ListingRow, codes []string, window *models.Window) []models.ListingRow {
	var selected []models.ListingRow
	for _, row := range rows {
		if !row.Selectable || !containsAny(row.Name, codes) {
			continue
		}
		if window != nil {
			day, err := row.Date()
			if err != nil || !window.Contains(day) {
				continue
			}
		}
		selected = append(selected, row)
	}
	return selected
}

func containsAny(name string, codes []string) bool {
	for _, code := range codes {
		if code != "" && strings.Contains(name, code) {
			return true
		}
	}
	return false
}
