package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/logger"
)

// templatesCmd lists the keyword table in match order
var templatesCmd = &cobra.Command{
	Use:           "templates",
	Short:         "List workflow templates in match order",
	RunE:          listTemplates,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func listTemplates(cmd *cobra.Command, args []string) error {
	log := logger.New("templates")

	cfg, err := loadConfig()
	if err != nil {
		return log.Errorf("%w", err)
	}
	selector, err := templates.LoadSelector(cfg.Templates.File)
	if err != nil {
		return log.Errorf("failed to load workflow templates: %w", err)
	}

	source := selector.Path()
	if source == "" {
		source = "built-in"
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTemplates(source, selector.Templates()))
	return nil
}

func renderTemplates(source string, list []templates.Template) string {
	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprintf("Workflow templates (%s)", source))
	b.WriteString("\n")

	for i, tmpl := range list {
		b.WriteString(fmt.Sprintf("%d. %s  %s\n", i+1, tmpl.Name,
			pterm.NewStyle(pterm.FgGray).Sprint("keywords: "+strings.Join(tmpl.Keywords, ", "))))
		items := make([]pterm.BulletListItem, len(tmpl.Steps))
		for j, step := range tmpl.Steps {
			items[j] = pterm.BulletListItem{Level: 1, Text: step.Operation}
		}
		rendered, _ := pterm.DefaultBulletList.WithItems(items).Srender()
		b.WriteString(rendered)
	}
	return b.String()
}
