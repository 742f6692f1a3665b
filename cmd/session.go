package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daeunpk/wink/internal/report"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage the active session",
	}
	cmd.AddCommand(newSessionShowCmd(opts))
	cmd.AddCommand(newSessionArchiveCmd(opts))
	cmd.AddCommand(newSessionBackfillCmd(opts))
	return cmd
}

func newSessionShowCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Print a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			name := a.pipeline.SessionName()
			if len(args) == 1 {
				name = args[0]
			}
			if !a.sessions.Exists(name) {
				return fmt.Errorf("session %q not found in %s", name, a.sessions.Dir())
			}
			sess, err := a.sessions.Load(name)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), f, sess)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: json or yaml")
	return cmd
}

func newSessionArchiveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move the active session aside so the next turn starts fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			archived, err := a.pipeline.Archive()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), archived)
			return nil
		},
	}
}

func newSessionBackfillCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Embed the keyword sets of turns that have no keyword embedding yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.pipeline.BackfillEmbeddings(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d keyword embeddings added using %s\n", added, a.embedder.Name())
			return nil
		},
	}
}
