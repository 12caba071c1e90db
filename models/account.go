package models

import (
	"fmt"
	"strings"
)

type MeasureType string

const (
	MeasurePower MeasureType = "Power"
	MeasureGas   MeasureType = "Gas"
)

// ParseMeasure accepts the roster spelling of a measure type in any case.
func ParseMeasure(s string) (MeasureType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "power":
		return MeasurePower, nil
	case "gas":
		return MeasureGas, nil
	default:
		return "", fmt.Errorf("unknown measure type %q", s)
	}
}

func (m MeasureType) String() string {
	return string(m)
}

// Account is one wholesaler login on the reseller portal. Loaded once per
// run and never mutated.
type Account struct {
	WholesalerID int64       `json:"wholesaler_id" db:"id_grossista" validate:"required"`
	ResellerID   int64       `json:"reseller_id" db:"id_reseller" validate:"required"`
	Reseller     string      `json:"reseller" db:"reseller"`
	Username     string      `json:"username" db:"username" validate:"required"`
	Password     string      `json:"-" db:"password" validate:"required"`
	Measure      MeasureType `json:"measure" db:"tipo_misura" validate:"required,oneof=Power Gas"`
	Root         string      `json:"root" db:"cartella" validate:"required"`
	PortalURL    string      `json:"portal_url" db:"link_a_portale" validate:"required,url"`
	Recipients   []string    `json:"recipients" db:"email_destinatario" validate:"dive,email"`
}

// Label identifies the account in logs and notifications.
func (a *Account) Label() string {
	return fmt.Sprintf("%s/%s", a.Reseller, a.Measure)
}

// SplitRecipients turns the comma-joined recipient column into a list.
func SplitRecipients(joined string) []string {
	var out []string
	for _, r := range strings.Split(joined, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
