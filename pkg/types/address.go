package types

import "strings"

// Address is the shipping address snapshot stored on orders and payments.
// The address validator collaborator produces it; this core only checks
// that every field survived the trip.
type Address struct {
	Name        string `json:"name,omitempty"`
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// MissingFields returns the names of required fields that are empty.
func (a Address) MissingFields() []string {
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
		{"postal_code", a.PostalCode},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// IsComplete reports whether all five required fields are present.
func (a Address) IsComplete() bool {
	return len(a.MissingFields()) == 0
}
