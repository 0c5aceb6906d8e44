package models

import "time"

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Provider  string    `json:"provider"`
}

// DebugResponse echoes what the server received. Only served outside
// production.
type DebugResponse struct {
	Method      string              `json:"method"`
	URL         string              `json:"url"`
	Headers     map[string][]string `json:"headers"`
	Query       map[string][]string `json:"query"`
	Form        map[string][]string `json:"form,omitempty"`
	Files       []DebugFile         `json:"files,omitempty"`
	Timestamp   int64               `json:"timestamp"`
	Environment string              `json:"environment"`
}

type DebugFile struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
