// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/invowk/layerdeploy/internal/deploy"
	"github.com/invowk/layerdeploy/internal/issue"
	"github.com/invowk/layerdeploy/internal/layer"
)

const (
	successIcon = "✓"
	errorIcon   = "✗"
	skipIcon    = "•"
)

// renderPlan prints the layer decision and one row per target.
func renderPlan(w io.Writer, plan *layer.Plan, artifactKey string) {
	fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("Fingerprint:"), CodeStyle.Render(plan.Fingerprint.String()))
	if artifactKey != "" {
		fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("Artifact:   "), CodeStyle.Render(artifactKey))
	}
	if plan.Version != nil {
		fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("Layer:      "), CodeStyle.Render(plan.Version.Ref))
	}
	fmt.Fprintln(w)

	if len(plan.Updates) == 0 {
		fmt.Fprintf(w, "%s No targets configured\n", skipIcon)
		return
	}
	rows := make([][]string, 0, len(plan.Updates))
	for _, u := range plan.Updates {
		rows = append(rows, []string{u.Target.String(), changedLabel(u.Changed)})
	}
	fmt.Fprintln(w, newTable([]string{"TARGET", "LAYER"}, rows))

	changed := layer.ChangedCount(plan.Updates)
	if plan.NoLayerWork {
		fmt.Fprintf(w, "%s All %d target(s) are current\n", SuccessStyle.Render(successIcon), len(plan.Updates))
		return
	}
	fmt.Fprintf(w, "%s %d of %d target(s) need the layer\n", WarningStyle.Render(skipIcon), changed, len(plan.Updates))
}

// renderReport prints the per-target deploy results.
func renderReport(w io.Writer, report *deploy.Report) {
	if report == nil || len(report.Results) == 0 {
		fmt.Fprintf(w, "%s Nothing to deploy\n", skipIcon)
		return
	}
	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		status, size, memory := "-", "-", "-"
		if r.Response != nil {
			status = strconv.Itoa(r.Response.StatusCode)
			size = humanBytes(r.Response.CodeSize)
			memory = strconv.Itoa(r.Response.MemorySize) + " MB"
		}
		rows = append(rows, []string{r.Target.String(), changedLabel(r.Changed), status, size, memory})
	}
	fmt.Fprintln(w, newTable([]string{"TARGET", "LAYER", "STATUS", "CODE", "MEMORY"}, rows))

	if p := report.Plan; p != nil && p.Version != nil {
		fmt.Fprintf(w, "%s Deployed %d function(s) with %s\n",
			SuccessStyle.Render(successIcon), len(report.Results), CodeStyle.Render(p.Version.Ref))
		return
	}
	fmt.Fprintf(w, "%s Deployed %d function(s), dependency layer unchanged\n",
		SuccessStyle.Render(successIcon), len(report.Results))
}

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SubtitleStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
}

func changedLabel(changed bool) string {
	if changed {
		return "attach"
	}
	return "current"
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// renderError prints err with its suggestions and, when verbose, the
// matching troubleshooting guide. It returns the ExitError RunE should
// return.
func (a *App) renderError(cmd *cobra.Command, err error) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	known, ae := issue.Explain(err)
	fmt.Fprintf(a.stderr, "%s %s\n", ErrorStyle.Render(errorIcon), ae.Format(a.verbose))
	if known != nil && a.verbose {
		if guide, rErr := known.Render("dark"); rErr == nil {
			fmt.Fprint(a.stderr, guide)
		}
	}
	return &ExitError{Code: 1, Err: err}
}
