package model

// Holiday is a read-only overlay entry from an external holiday calendar.
type Holiday struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	Category string `json:"category"`
}
