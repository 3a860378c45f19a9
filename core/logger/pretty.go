package logger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	"github.com/geoflow/geoflow/core/domain"
)

var (
	headingStyle = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)
	labelStyle   = pterm.NewStyle(pterm.FgLightCyan)
	mutedStyle   = pterm.NewStyle(pterm.FgGray)
)

func statusStyle(status domain.StepStatus) *pterm.Style {
	switch status {
	case domain.StepExecuting:
		return pterm.NewStyle(pterm.FgYellow, pterm.Bold)
	case domain.StepCompleted:
		return pterm.NewStyle(pterm.FgGreen, pterm.Bold)
	case domain.StepError:
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	default:
		return pterm.NewStyle(pterm.FgLightBlue)
	}
}

// FormatSession renders a session and its steps for the terminal
func FormatSession(session *domain.QuerySession) string {
	var b strings.Builder
	b.WriteString(headingStyle.Sprint("Query") + "\n")
	b.WriteString(labelStyle.Sprint("→ Text:    ") + session.Query + "\n")
	b.WriteString(labelStyle.Sprint("→ Session: ") + session.ID + "\n")
	b.WriteString(labelStyle.Sprint("→ Status:  ") + string(session.Status) + "\n")

	if len(session.Steps) == 0 {
		b.WriteString(mutedStyle.Sprint("No workflow matched this query") + "\n")
		return b.String()
	}

	b.WriteString("\n" + headingStyle.Sprint("Chain of thought") + "\n")
	for i, step := range session.Steps {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, FormatStep(step)))
		if step.Input != "" {
			b.WriteString("   " + labelStyle.Sprint("input: ") + step.Input + "\n")
		}
		if params := formatParameters(step.Parameters); params != "" {
			b.WriteString("   " + labelStyle.Sprint("parameters: ") + params + "\n")
		}
		if step.Explanation != "" {
			b.WriteString("   " + mutedStyle.Sprint(step.Explanation) + "\n")
		}
	}
	return b.String()
}

// FormatStep renders a one-line step summary
func FormatStep(step domain.WorkflowStep) string {
	line := fmt.Sprintf("%s [%s]", step.Operation, statusStyle(step.Status).Sprint(string(step.Status)))
	if step.Result != nil {
		line += " " + mutedStyle.Sprintf("%s (%s)", step.Result.Message, step.Result.Data)
	}
	return line
}

// FormatLayer renders the layer added when a workflow completes
func FormatLayer(layer domain.MapLayerDescriptor) string {
	title := pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("Layer Added")
	details := strings.Join([]string{
		labelStyle.Sprint("Name:  ") + layer.Name,
		labelStyle.Sprint("Type:  ") + string(layer.Category),
		labelStyle.Sprint("Color: ") + layer.Color,
	}, "\n")
	return pterm.DefaultBox.WithTitle(title).WithPadding(1).Sprint(details)
}

func formatParameters(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, ", ")
}
