package model

import "time"

// PaperExport is the top-level document written by `paperdash paper export`.
type PaperExport struct {
	ExportedAt time.Time               `json:"exported_at" yaml:"exported_at"`
	APIBase    string                  `json:"api_base" yaml:"api_base"`
	Paper      PaperDetail             `json:"paper" yaml:"paper"`
	Charts     map[string][]ChartPoint `json:"charts,omitempty" yaml:"charts,omitempty"`
}

// RosterExport is the document written by `paperdash students export`
// when a structured (non-spreadsheet) format is requested.
type RosterExport struct {
	ExportedAt time.Time          `json:"exported_at" yaml:"exported_at"`
	Fleet      FleetStats         `json:"fleet" yaml:"fleet"`
	Students   []StudentAnalytics `json:"students" yaml:"students"`
}
