package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"panelmotion/internal/apiclient"
)

const defaultServer = "http://localhost:8080"

type commandContext struct {
	server string
	locale string
	json   bool
}

func (c *commandContext) client() (*apiclient.Client, error) {
	server := strings.TrimSpace(c.server)
	if server == "" {
		server = strings.TrimSpace(os.Getenv("PANELMOTION_URL"))
	}
	if server == "" {
		server = defaultServer
	}
	return apiclient.New(server, apiclient.WithLocale(c.locale))
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Drive the panel-to-video pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.server, "server", "s", "", "API base URL (defaults to PANELMOTION_URL or "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&ctx.locale, "locale", "", "Preferred response language (en, id)")
	rootCmd.PersistentFlags().BoolVar(&ctx.json, "json", false, "Print raw JSON")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newFinalizeCommand(ctx))
	rootCmd.AddCommand(newStagesCommand(ctx))
	rootCmd.AddCommand(newArchiveCommand(ctx))

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
