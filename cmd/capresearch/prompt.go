package main

import (
	"fmt"
	"io"
	"strings"

	"capresearch/internal/workflow"

	"github.com/spf13/cobra"
)

func promptCmd(flags *globalFlags) *cobra.Command {
	var promptType string
	cmd := &cobra.Command{
		Use:   "prompt <capability id or name>",
		Short: "Print the research prompt for a capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			kind, err := workflow.ParseResearchType(promptType)
			if err != nil {
				return err
			}
			logger := newLogger(io.Discard, cfg.Log)
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			id, err := resolveCapability(cmd, a, args[0])
			if err != nil {
				return err
			}
			doc, err := a.workflow.GeneratePrompt(cmd.Context(), id, kind)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), doc.Content)
			return err
		},
	}
	cmd.Flags().StringVarP(&promptType, "type", "t", string(workflow.DomainAnalysis), "prompt type (domain_analysis, comprehensive_research)")
	return cmd
}

// resolveCapability accepts an ID or a case-insensitive capability name.
func resolveCapability(cmd *cobra.Command, a *app, ref string) (string, error) {
	list, err := a.core.ListCapabilities(cmd.Context())
	if err != nil {
		return "", err
	}
	for _, c := range list {
		if c.ID == ref || strings.EqualFold(c.Name, ref) {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("capability %q not found", ref)
}
