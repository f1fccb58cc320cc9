// cmd_serve.go - Serve Command
// Hauptfunktionen: RunServer
package cmd

import (
	"context"
	"net"

	"github.com/spf13/cobra"

	"github.com/7blacky7/transformer-vae/envconfig"
	"github.com/7blacky7/transformer-vae/server"
	"github.com/7blacky7/transformer-vae/store"
)

// RunServer - Startet den Run-Browser auf VAE_HOST
func RunServer(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	st := &store.Store{}
	defer st.Close()

	return server.Serve(ctx, ln, st)
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the run browser",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
