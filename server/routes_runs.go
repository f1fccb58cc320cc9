// routes_runs.go - Handler fuer gespeicherte Runs
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/transformer-vae/api"
	"github.com/7blacky7/transformer-vae/store"
)

// abortStoreError uebersetzt Store-Fehler in HTTP-Antworten
func abortStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	slog.Error("run store", "path", c.Request.URL.Path, "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) ListRunsHandler(c *gin.Context) {
	runs, err := s.store.Runs(c.Request.Context())
	if err != nil {
		abortStoreError(c, err)
		return
	}

	if runs == nil {
		runs = []store.Run{}
	}
	c.JSON(http.StatusOK, api.ListRunsResponse{Runs: runs})
}

func (s *Server) ShowRunHandler(c *gin.Context) {
	run, err := s.store.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ShowRunResponse{Run: *run})
}

func (s *Server) DeleteRunHandler(c *gin.Context) {
	if err := s.store.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		abortStoreError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// MetricsHandler liefert die Metriken eines Runs; ?name= filtert nach Namen
func (s *Server) MetricsHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.Run(c.Request.Context(), id); err != nil {
		abortStoreError(c, err)
		return
	}

	metrics, err := s.store.Metrics(c.Request.Context(), id)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	if names := c.QueryArray("name"); len(names) > 0 {
		metrics = slices.DeleteFunc(metrics, func(m store.Metric) bool {
			return !slices.Contains(names, m.Name)
		})
	}

	c.JSON(http.StatusOK, api.MetricsResponse{RunID: id, Metrics: metrics})
}

func (s *Server) ProbesHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.Run(c.Request.Context(), id); err != nil {
		abortStoreError(c, err)
		return
	}

	probes, err := s.store.Probes(c.Request.Context(), id)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ProbesResponse{RunID: id, Probes: probes})
}
