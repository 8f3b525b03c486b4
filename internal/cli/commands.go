package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"archpipe/internal/model"
	"archpipe/internal/service"
)

func addExtractCommand(parent *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "extract [text]",
		Short: "Extract design parameters from a description",
		Long: `Extract canonical design parameters from a building description.
The description is read from the arguments, or from stdin when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.request(cmd, args)
			if err != nil {
				return err
			}
			p, closer, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			ext, err := p.Extract(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.flags.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), ext)
			}
			return printExtraction(cmd.OutOrStdout(), ext)
		},
	}
	parent.AddCommand(cmd)
}

func addAnalyzeCommand(parent *cobra.Command, a *app) {
	var agents []string
	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Run every specialist agent on a description",
		Long: `Run the multi-agent analysis (architectural, materials, structural, cost
by default) and print the composite result. Use --agents to select agents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.request(cmd, args)
			if err != nil {
				return err
			}
			p, closer, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			specs, err := service.SelectAgents(p.Agents(), agents)
			if err != nil {
				return err
			}
			composite, err := p.RunComprehensiveAnalysisStream(cmd.Context(), req, specs, func(r model.AgentAnalysisResult) {
				a.logger.Info().Str("agent", r.AgentID).Str("status", string(r.Status)).Msg("agent finished")
			})
			if err != nil {
				return err
			}
			if a.flags.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), composite)
			}
			return printComposite(cmd.OutOrStdout(), composite)
		},
	}
	cmd.Flags().StringSliceVar(&agents, "agents", nil, "agent ids to run (default all)")
	parent.AddCommand(cmd)
}

func addHashCommand(parent *cobra.Command, a *app) {
	var namespace string
	cmd := &cobra.Command{
		Use:   "hash [text]",
		Short: "Print the cache key of a description",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.request(cmd, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), service.CacheKey(namespace, req))
			return err
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "extract", "cache namespace")
	parent.AddCommand(cmd)
}

func printExtraction(w io.Writer, ext service.Extraction) error {
	p := ext.Result.Parameters
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Source\t%s\n", ext.Source)
	fmt.Fprintf(tw, "Building type\t%s\n", p.BuildingType)
	fmt.Fprintf(tw, "Total area\t%g %s\n", p.TotalArea.Value, p.TotalArea.Unit)
	for _, r := range p.Rooms {
		line := fmt.Sprintf("%s x%d (%g m2)", r.Type, r.Count, r.Area)
		if r.Orientation != "" {
			line += " " + r.Orientation
		}
		fmt.Fprintf(tw, "Room\t%s\n", line)
	}
	fmt.Fprintf(tw, "Confidence\t%.2f\n", ext.Result.Confidence)
	fmt.Fprintf(tw, "Name\t%s\n", p.SuggestedName)
	return tw.Flush()
}

func printComposite(w io.Writer, c model.CompositeAnalysisResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSTATUS\tSOURCE\tCONFIDENCE\tTOP RECOMMENDATION")
	for _, id := range service.NewScorer(1).Rank(c.Agents) {
		a := c.Agents[id]
		top := "-"
		if len(a.Recommendations) > 0 {
			top = strings.TrimSpace(a.Recommendations[0])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", id, a.Status, a.Source, a.Confidence, top)
	}
	fmt.Fprintf(tw, "\nOverall score\t%.2f\n", c.OverallScore)
	fmt.Fprintf(tw, "Duration\t%d ms\n", c.ProcessingTimeMs)
	return tw.Flush()
}
