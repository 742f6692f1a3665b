package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/daeunpk/wink/internal/images"
	"github.com/daeunpk/wink/internal/pipeline"
	"github.com/daeunpk/wink/internal/report"
	"github.com/daeunpk/wink/internal/session"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		text       string
		image      string
		newSession bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run one turn, or start an interactive conversation",
		Long: `Runs the pipeline for a turn: translate the Korean text, caption the image,
merge both into one English sentence, extract mood keywords and rank catalog
tracks against them. The turn is appended to the active session.

Without --text or --image, chat prompts for turns until EOF or "exit".`,
		Example: `  # Single turn from text
  wink chat --text "비가 와서 조금 우울해"

  # Text and image, starting a new session
  wink chat --new --text "산책 중이야" --image walk.jpg

  # Remote images are downloaded first
  wink chat --image https://example.com/sunset.jpg

  # Machine-readable output
  wink chat --text "퇴근길" --format json

  # Interactive
  wink chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f report.Format
			if format != "" {
				var err error
				if f, err = report.ParseFormat(format); err != nil {
					return err
				}
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if newSession {
				if err := archiveActive(cmd, a); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if text != "" || image != "" {
				path, err := images.NewFetcher().Resolve(cmd.Context(), image, a.cfg.Server.UploadsDir)
				if err != nil {
					return err
				}
				res, err := a.pipeline.Run(cmd.Context(), pipeline.Input{KoreanText: text, ImagePath: path})
				if res != nil {
					if werr := printResult(out, f, res); werr != nil {
						return werr
					}
				}
				return err
			}
			askResume := !newSession && !cmd.Flags().Changed("continue") && a.sessions.Exists(a.pipeline.SessionName())
			return interactive(cmd, a, f, askResume)
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Korean text for this turn")
	cmd.Flags().StringVarP(&image, "image", "i", "", "Path or http(s) URL of an image for this turn")
	cmd.Flags().BoolVar(&newSession, "new", false, "Archive the active session and start a new one")
	cmd.Flags().Bool("continue", true, "Append to the active session (default)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or yaml (default: human-readable)")
	cmd.MarkFlagsMutuallyExclusive("new", "continue")

	return cmd
}

func archiveActive(cmd *cobra.Command, a *app) error {
	archived, err := a.pipeline.Archive()
	switch {
	case errors.Is(err, session.ErrNoSession):
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), labelStyle.Render("Previous session archived as "+archived))
	return nil
}

// interactive reads turns from stdin until EOF or "exit". With askResume it
// first offers to start a new session instead of continuing the active one.
func interactive(cmd *cobra.Command, a *app, f report.Format, askResume bool) error {
	fetcher := images.NewFetcher()
	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	prompt := func(label string) (string, bool) {
		fmt.Fprint(out, labelStyle.Render(label))
		if !in.Scan() {
			return "", false
		}
		line := strings.TrimSpace(in.Text())
		return line, line != "exit" && line != "quit"
	}

	fmt.Fprintln(out, titleStyle.Render("wink")+labelStyle.Render(`  (leave a field blank to skip it, "exit" to quit)`))
	if askResume {
		answer, ok := prompt("continue the previous conversation? [Y/n] ")
		if !ok {
			return in.Err()
		}
		if strings.HasPrefix(strings.ToLower(answer), "n") {
			if err := archiveActive(cmd, a); err != nil {
				return err
			}
		}
	}
	for {
		text, ok := prompt("text  > ")
		if !ok {
			break
		}
		image, ok := prompt("image > ")
		if !ok {
			break
		}

		image, err := fetcher.Resolve(cmd.Context(), image, a.cfg.Server.UploadsDir)
		if err != nil {
			fmt.Fprintln(out, warnStyle.Render(err.Error()))
			continue
		}
		res, err := a.pipeline.Run(cmd.Context(), pipeline.Input{KoreanText: text, ImagePath: image})
		if res != nil {
			if werr := printResult(out, f, res); werr != nil {
				return werr
			}
		}
		switch {
		case errors.Is(err, pipeline.ErrRejected):
			fmt.Fprintln(out, warnStyle.Render("Nothing usable in that turn, try again."))
		case err != nil:
			return err
		}
		if cmd.Context().Err() != nil {
			return cmd.Context().Err()
		}
	}
	return in.Err()
}

// printResult writes res in format f, or as styled text when f is empty.
func printResult(w io.Writer, f report.Format, res *pipeline.Result) error {
	if f != "" {
		return report.Write(w, f, res)
	}

	var b strings.Builder
	if res.Status == pipeline.StatusRejected {
		b.WriteString(warnStyle.Render("Turn rejected") + "\n")
	} else {
		b.WriteString(titleStyle.Render(fmt.Sprintf("Turn %d", res.TurnIndex+1)))
		if res.Topic != "" {
			b.WriteString(labelStyle.Render("  " + res.Topic))
		}
		b.WriteString("\n")
		if s := res.Turn.MergedSentence; s != "" {
			b.WriteString(s + "\n")
		}
		if len(res.Turn.Keywords) > 0 {
			b.WriteString(labelStyle.Render("keywords: ") + keywordStyle.Render(strings.Join(res.Turn.Keywords, ", ")) + "\n")
		}
		for i, r := range res.Turn.Recommendations {
			line := fmt.Sprintf("%2d. %s  %.3f", i+1, r.ID, r.Score)
			if tags := r.Metadata["mood_tags"]; tags != "" {
				line += labelStyle.Render("  " + tags)
			}
			b.WriteString(line + "\n")
		}
	}
	for _, warning := range res.Warnings {
		b.WriteString(warnStyle.Render("! "+warning) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
