// cmd_runs.go - Runs, Show und Delete Commands
// Hauptfunktionen: RunsHandler, ShowHandler, DeleteHandler
//
// Mit --remote werden die Daten ueber den Run-Browser (VAE_HOST) gelesen,
// sonst direkt aus der Run-Datenbank (VAE_RUNS_DB).
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/7blacky7/transformer-vae/api"
	"github.com/7blacky7/transformer-vae/probe"
	"github.com/7blacky7/transformer-vae/store"
)

// runSource - Gemeinsame Sicht auf lokale Datenbank und Run-Browser
type runSource interface {
	Runs(ctx context.Context) ([]store.Run, error)
	Run(ctx context.Context, id string) (*store.Run, error)
	Metrics(ctx context.Context, id string) ([]store.Metric, error)
	Probes(ctx context.Context, id string) ([]store.ProbeTable, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}

// remoteSource - runSource ueber den api.Client
type remoteSource struct {
	client *api.Client
}

func (r remoteSource) Runs(ctx context.Context) ([]store.Run, error) {
	resp, err := r.client.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (r remoteSource) Run(ctx context.Context, id string) (*store.Run, error) {
	resp, err := r.client.ShowRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

func (r remoteSource) Metrics(ctx context.Context, id string) ([]store.Metric, error) {
	resp, err := r.client.Metrics(ctx, id)
	if err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}

func (r remoteSource) Probes(ctx context.Context, id string) ([]store.ProbeTable, error) {
	resp, err := r.client.Probes(ctx, id)
	if err != nil {
		return nil, err
	}
	return resp.Probes, nil
}

func (r remoteSource) DeleteRun(ctx context.Context, id string) error {
	return r.client.DeleteRun(ctx, id)
}

func (r remoteSource) Close() error { return nil }

var _ runSource = (*store.Store)(nil)

// openSource - Waehlt je nach --remote den Run-Browser oder die Datenbank
func openSource(cmd *cobra.Command) (runSource, error) {
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
		if err := client.Heartbeat(cmd.Context()); err != nil {
			return nil, fmt.Errorf("run browser not reachable: %w", err)
		}
		return remoteSource{client: client}, nil
	}
	return &store.Store{}, nil
}

// resolveRunID - Erlaubt eindeutige ID-Praefixe wie bei "list"
func resolveRunID(ctx context.Context, src runSource, prefix string) (string, error) {
	runs, err := src.Runs(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, r := range runs {
		if r.ID == prefix {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, prefix) {
			matches = append(matches, r.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", store.ErrRunNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run id %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

// RunsHandler - Listet alle aufgezeichneten Runs auf
func RunsHandler(cmd *cobra.Command, args []string) error {
	src, err := openSource(cmd)
	if err != nil {
		return err
	}
	defer src.Close()

	runs, err := src.Runs(cmd.Context())
	if err != nil {
		return err
	}

	if len(args) > 0 {
		filtered := runs[:0]
		for _, r := range runs {
			if strings.HasPrefix(strings.ToLower(r.Name), strings.ToLower(args[0])) {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	renderRuns(cmd.OutOrStdout(), runs, !isTerminal())
	return nil
}

// ShowHandler - Zeigt letzte Metriken und Proben-Tabellen eines Runs
func ShowHandler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src, err := openSource(cmd)
	if err != nil {
		return err
	}
	defer src.Close()

	id, err := resolveRunID(ctx, src, args[0])
	if err != nil {
		return err
	}

	run, err := src.Run(ctx, id)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	plain := !isTerminal()
	fmt.Fprintf(w, "run %s %s\n", run.ID, run.Name)

	if showConfig, _ := cmd.Flags().GetBool("config"); showConfig {
		fmt.Fprintf(w, "%s\n", run.Config)
	}

	metrics, err := src.Metrics(ctx, id)
	if err != nil {
		return err
	}
	if len(metrics) > 0 {
		fmt.Fprintln(w)
		renderMetrics(w, lastMetrics(metrics), plain)
	}

	probes, err := src.Probes(ctx, id)
	if err != nil {
		return err
	}

	// Standardmaessig nur die Proben des letzten Schritts
	if all, _ := cmd.Flags().GetBool("all"); !all && len(probes) > 0 {
		lastStep := probes[len(probes)-1].Step
		var latest []store.ProbeTable
		for _, p := range probes {
			if p.Step == lastStep {
				latest = append(latest, p)
			}
		}
		probes = latest
	}

	for _, p := range probes {
		fmt.Fprintf(w, "\nstep %d ", p.Step)
		if err := probe.Render(w, &p.Table, plain); err != nil {
			return err
		}
	}
	return nil
}

// DeleteHandler - Loescht Runs mit allen Metriken und Proben
func DeleteHandler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src, err := openSource(cmd)
	if err != nil {
		return err
	}
	defer src.Close()

	for _, arg := range args {
		id, err := resolveRunID(ctx, src, arg)
		if err != nil {
			return err
		}
		if err := src.DeleteRun(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted '%s'\n", id)
	}
	return nil
}

// newRunsCmd - Erstellt den runs Command
func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runs [NAME]",
		Aliases: []string{"ls"},
		Short:   "List recorded training runs",
		Args:    cobra.MaximumNArgs(1),
		RunE:    RunsHandler,
	}
	cmd.Flags().Bool("remote", false, "Read runs from the run browser at VAE_HOST")
	return cmd
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RUN",
		Short: "Show metrics and probe tables of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowHandler,
	}
	cmd.Flags().Bool("remote", false, "Read the run from the run browser at VAE_HOST")
	cmd.Flags().Bool("all", false, "Show probe tables of every evaluation, not only the last")
	cmd.Flags().Bool("config", false, "Print the run configuration")
	return cmd
}

// newDeleteCmd - Erstellt den delete Command
func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm RUN [RUN...]",
		Short: "Remove recorded runs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  DeleteHandler,
	}
	cmd.Flags().Bool("remote", false, "Delete through the run browser at VAE_HOST")
	return cmd
}
