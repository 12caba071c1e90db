package models

import "time"

// Outcome is one appended row of the outcome log. The latest row by
// OperatedAt for a (reseller, wholesaler, measure) key drives the next window.
type Outcome struct {
	ResellerID   int64       `json:"reseller_id" db:"id_reseller"`
	WholesalerID int64       `json:"wholesaler_id" db:"id_grossista"`
	Measure      MeasureType `json:"measure" db:"tipo_misura"`
	OperatedAt   time.Time   `json:"operated_at" db:"data_operazione"`
	ReferenceDay time.Time   `json:"reference_day" db:"data_riferimento"`
	WindowStart  time.Time   `json:"window_start" db:"data_inizio_ricerca"`
	WindowEnd    time.Time   `json:"window_end" db:"data_fine_ricerca"`
	LogText      string      `json:"log_text" db:"log_contenuto"`
	Success      bool        `json:"success" db:"esito"`
}

// Window is an inclusive calendar-date range. Both bounds sit at local midnight.
type Window struct {
	Start time.Time
	End   time.Time
}

const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date in t's own location and re-anchors
// it at local midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func (w Window) Contains(day time.Time) bool {
	day = DateOf(day)
	return !day.Before(DateOf(w.Start)) && !day.After(DateOf(w.End))
}

func (w Window) String() string {
	return w.Start.Format(DateLayout) + " -> " + w.End.Format(DateLayout)
}
