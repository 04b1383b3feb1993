package models

import "time"

// ReferenceEntry is one row of the source's symbol/code reference list
type ReferenceEntry struct {
	Code           string `json:"code"`
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	InstrumentType string `json:"instrument_type,omitempty"`
}

// LocalEntry is a locally-known company, possibly listed once per index membership
type LocalEntry struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name"`
	Industry    string `json:"industry,omitempty"`
	IndexName   string `json:"index_name,omitempty"`
}

// SymbolMapping links a local symbol to the source's reference code.
// RefCode is only set when the match confidence exceeded 0.5.
type SymbolMapping struct {
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name"`
	Industry    string    `json:"industry,omitempty"`
	Indexes     []string  `json:"indexes,omitempty"`
	RefCode     string    `json:"ref_code,omitempty"`
	RefSymbol   string    `json:"ref_symbol,omitempty"`
	RefName     string    `json:"ref_name,omitempty"`
	Confidence  float64   `json:"confidence"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Matched reports whether the mapping carries a usable reference code
func (m *SymbolMapping) Matched() bool {
	return m.RefCode != ""
}
