// cmd.go - Haupt-CLI Definition
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/transformer-vae/envconfig"
	"github.com/7blacky7/transformer-vae/logutil"
)

// appendEnvDocs - Fuegt Environment-Variablen-Dokumentation zu einem Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// isTerminal - Prueft ob stdout ein Terminal ist; sonst werden Tabellen schlicht gedruckt
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "transformer-vae",
		Short:         "Transformer autoencoder with a regularised latent space",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	// Commands erstellen
	trainCmd := newTrainCmd()
	runsCmd := newRunsCmd()
	showCmd := newShowCmd()
	deleteCmd := newDeleteCmd()
	serveCmd := newServeCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{trainCmd, runsCmd, showCmd, deleteCmd, serveCmd} {
		switch cmd {
		case trainCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VAE_DEBUG"],
				envVars["VAE_RUNS_DB"],
				envVars["VAE_LATENT_CACHE_TYPE"],
				envVars["VAE_SEED"],
				envVars["VAE_NUM_WORKERS"],
			})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VAE_DEBUG"],
				envVars["VAE_HOST"],
				envVars["VAE_ORIGINS"],
				envVars["VAE_RUNS_DB"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["VAE_HOST"], envVars["VAE_RUNS_DB"]})
		}
	}

	rootCmd.AddCommand(
		trainCmd,
		runsCmd,
		showCmd,
		deleteCmd,
		serveCmd,
	)

	return rootCmd
}
