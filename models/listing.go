package models

import "time"

// ListingRow is one scraped row of a portal listing table. Never persisted.
type ListingRow struct {
	Index      int    // 1-based position among the table body rows
	Name       string // first cell text
	DateText   string // second cell text, empty on tables without dates
	Selectable bool   // row carries an enabled checkbox
}

// RowDateLayout is the day/month/year format the portal uses in listing cells.
// Day and month may be zero-padded or not.
const RowDateLayout = "2/1/2006"

// Date parses the leading day/month/year token of DateText as a local date.
func (r ListingRow) Date() (time.Time, error) {
	token := r.DateText
	for i, c := range token {
		if c == ' ' {
			token = token[:i]
			break
		}
	}
	return time.ParseInLocation(RowDateLayout, token, time.Local)
}
