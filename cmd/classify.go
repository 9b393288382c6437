package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/progress-overlay/internal/classifier"
	"github.com/JakeFAU/progress-overlay/internal/event"
)

func newClassifyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classifies a notification envelope read from a file or stdin",
		Long: `Reads one JSON notification envelope and prints the progress kind it
would create, or "classified": false. No state is touched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open envelope: %w", err)
				}
				defer f.Close()
				in = f
			}
			return classifyEnvelope(in, cmd.OutOrStdout(), cfg.Tracker.ClockPackage)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "envelope JSON file; - reads stdin")
	return cmd
}

type classification struct {
	Classified       bool       `json:"classified"`
	Kind             event.Kind `json:"kind,omitempty"`
	Priority         int        `json:"priority,omitempty"`
	Percent          int        `json:"percent,omitempty"`
	RemainingSeconds float64    `json:"remaining_seconds,omitempty"`
	TotalSeconds     float64    `json:"total_seconds,omitempty"`
	Running          bool       `json:"running,omitempty"`
}

func classifyEnvelope(r io.Reader, w io.Writer, clockPackage string) error {
	var env event.Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	res, ok := classifier.Classify(env, clockPackage)
	out := classification{Classified: ok}
	if ok {
		out.Kind = res.Kind
		out.Priority = res.Kind.Priority()
		out.Percent = res.Percent
		if res.Kind == event.KindCountdownTimer {
			out.Running = res.Timer.Running
			out.RemainingSeconds = res.Timer.Remaining.Seconds()
			out.TotalSeconds = res.Timer.Total.Seconds()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write classification: %w", err)
	}
	return nil
}
