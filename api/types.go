// Package api - Anfrage- und Antworttypen des Run-Browsers.
// Enthaelt: StatusError, ListRunsResponse, ShowRunResponse, MetricsResponse, ProbesResponse
package api

import (
	"fmt"

	"github.com/7blacky7/transformer-vae/store"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
}

// ListRunsResponse is the response from [Client.ListRuns].
type ListRunsResponse struct {
	Runs []store.Run `json:"runs"`
}

// ShowRunResponse is the response from [Client.ShowRun].
type ShowRunResponse struct {
	store.Run
}

// MetricsResponse is the response from [Client.Metrics].
type MetricsResponse struct {
	RunID   string         `json:"run_id"`
	Metrics []store.Metric `json:"metrics"`
}

// ProbesResponse is the response from [Client.Probes].
type ProbesResponse struct {
	RunID  string             `json:"run_id"`
	Probes []store.ProbeTable `json:"probes"`
}
