package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"client-optimizer/pkg/optimizer"
	"client-optimizer/pkg/profile"
	"client-optimizer/pkg/recommend"
	"client-optimizer/pkg/scoring"
)

type scoreReport struct {
	Score           int                        `json:"score"`
	Status          scoring.Status             `json:"status"`
	Deductions      []string                   `json:"deductions"`
	Rules           []string                   `json:"rules"`
	Actions         []string                   `json:"actions"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

func newScoreCommand() *cobra.Command {
	var (
		outputFormat string
		deviceType   string
		speed        string
	)

	cmd := &cobra.Command{
		Use:   "score [metrics.json|-]",
		Short: "Score a metrics report and show what would be optimized",
		Long: `Reads a performance metrics report (the same JSON accepted by the metrics
operation), prints its health score and status, and dry-runs the adaptive
rules against a default profile for the given device.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			m, err := profile.DecodeMetrics(raw)
			if err != nil {
				return err
			}
			if err := profile.ValidateMetrics(m); err != nil {
				return err
			}

			device := profile.DeviceInfoPatch{}
			if deviceType != "" {
				dt := profile.DeviceType(deviceType)
				device.DeviceType = &dt
			}
			if speed != "" {
				cs := profile.ConnectionSpeed(speed)
				device.ConnectionSpeed = &cs
			}
			if err := profile.ValidateDeviceInfoPatch(device); err != nil {
				return err
			}

			p := profile.New("cli", time.Now())
			device.ApplyTo(&p.DeviceInfo)
			p.PerformanceMetrics = m

			score, status := scoring.Evaluate(p)
			plan := optimizer.Decide(p)
			report := scoreReport{
				Score:           score,
				Status:          status,
				Deductions:      nonNil(scoring.Fired(m)),
				Rules:           nonNil(plan.Rules),
				Actions:         nonNil(plan.Actions),
				Recommendations: recommend.NewGenerator().Generate(p),
			}
			return printScore(cmd.OutOrStdout(), report, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text or json")
	cmd.Flags().StringVar(&deviceType, "device", "", "Device type: mobile, tablet or desktop")
	cmd.Flags().StringVar(&speed, "connection-speed", "", "Connection speed: fast, moderate or slow")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	return raw, nil
}

func printScore(w io.Writer, r scoreReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "text", "":
		fmt.Fprintf(w, "Score:  %d (%s)\n", r.Score, r.Status)
		if len(r.Deductions) > 0 {
			fmt.Fprintf(w, "Deductions: %s\n", strings.Join(r.Deductions, ", "))
		}
		if len(r.Actions) > 0 {
			fmt.Fprintln(w, "Would apply:")
			for _, a := range r.Actions {
				fmt.Fprintf(w, "  - %s\n", a)
			}
		}
		if len(r.Recommendations) > 0 {
			fmt.Fprintln(w, "Recommendations:")
			for _, rec := range r.Recommendations {
				fmt.Fprintf(w, "  [%s] %s\n", rec.Priority, rec.Title)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
