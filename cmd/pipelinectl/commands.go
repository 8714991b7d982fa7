package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"panelmotion/internal/domain"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <image>",
		Short: "Upload a panel image and run colorizing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()
			job, err := client.Submit(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			return printJob(cmd, ctx, job)
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJob(cmd, ctx, job)
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobList(jobs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var params domain.StageParams
	cmd := &cobra.Command{
		Use:   "run <job-id> <stage>",
		Short: "Run one stage (colorize, background, animate, voiceover, composeVideo)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := domain.StageName(strings.TrimSpace(args[1]))
			if _, err := name.Stage(); err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.RunStage(cmd.Context(), args[0], name, params)
			if err != nil {
				return err
			}
			return printJob(cmd, ctx, job)
		},
	}
	cmd.Flags().StringVar(&params.Style, "style", "", "Background or animation style")
	cmd.Flags().StringVar(&params.Prompt, "prompt", "", "Custom background prompt")
	cmd.Flags().StringVar(&params.Voice, "voice", "", "Voice type")
	cmd.Flags().StringVar(&params.Dialogue, "dialogue", "", "Dialogue text for the voiceover")
	return cmd
}

func newFinalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <job-id>",
		Short: "Mark a job completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Finalize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJob(cmd, ctx, job)
		},
	}
}

func newStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "Show the stage catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			cat, err := client.Stages(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, cat)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStages(cat.Items))
			fmt.Fprintf(cmd.OutOrStdout(), "Background types: %s\n", strings.Join(cat.BackgroundTypes, ", "))
			fmt.Fprintf(cmd.OutOrStdout(), "Animation types:  %s\n", strings.Join(cat.AnimationTypes, ", "))
			fmt.Fprintf(cmd.OutOrStdout(), "Voice types:      %s\n", strings.Join(cat.VoiceTypes, ", "))
			return nil
		},
	}
}

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "archive <job-id>",
		Short: "Download every artifact of a job as a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = args[0] + ".zip"
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			n, err := client.Archive(cmd.Context(), args[0], f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(path)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to <job-id>.zip)")
	return cmd
}

func printJob(cmd *cobra.Command, ctx *commandContext, job *domain.Job) error {
	if ctx.json {
		return writeJSON(cmd, job)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderJob(job))
	return nil
}
