package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/toolshots/internal/classify"
)

// newClassifyCmd prints the capture strategy each URL argument would get.
func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify URL...",
		Short: "Show how a URL would be captured",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, raw := range args {
				kind := classify.Classify(raw)
				if kind == classify.KindYouTubeVideo {
					fmt.Fprintf(out, "%s\t%s\t%s\n", raw, kind, classify.YouTubeID(raw))
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", raw, kind)
			}
			return nil
		},
	}
}
