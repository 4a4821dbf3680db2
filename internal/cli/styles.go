// Package cli provides styled terminal output using lipgloss.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-books-must-balance/internal/engine"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

var (
	// PrimaryColor is the main theme color (ledger green).
	PrimaryColor = lipgloss.Color("#2E8B57")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4") // Teal
	// WarningColor indicates warnings or caution messages.
	WarningColor = lipgloss.Color("#FFE66D") // Yellow
	// ErrorColor indicates errors or failure messages.
	ErrorColor = lipgloss.Color("#FF6B6B") // Red
	// InfoColor indicates informational messages.
	InfoColor = lipgloss.Color("#95E1D3") // Light teal
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#666666") // Gray

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// SuccessStyle formats success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// InfoStyle formats informational messages.
	InfoStyle = lipgloss.NewStyle().
			Foreground(InfoColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// BoldStyle makes text bold.
	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	// BoxStyle is used for bordered content boxes.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#333"))

	// TableCellStyle formats table cells with appropriate padding.
	TableCellStyle = lipgloss.NewStyle().
			PaddingRight(2)

	// PromptStyle is used for user prompts.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	LedgerIcon  = "📒"
	RobotIcon   = "🤖"
	RuleIcon    = "📐"
	ChartIcon   = "📊"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a title with the ledger icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(LedgerIcon + " " + title)
}

// FormatPrompt formats a prompt message.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " → ")
}

// RenderBox renders content in a styled box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.
		UnsetMargins().
		Render(title)

	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, boxTitle, content))
}

func sourceIcon(source model.ResultSource) string {
	switch source {
	case model.SourceRule:
		return RuleIcon
	case model.SourceAI:
		return RobotIcon
	case model.SourceFallback:
		return WarningIcon
	}
	return InfoIcon
}

func confidenceStyle(confidence float64) lipgloss.Style {
	switch {
	case confidence >= 0.85:
		return SuccessStyle
	case confidence >= 0.6:
		return InfoStyle
	}
	return WarningStyle
}

// RenderResult renders a categorization and its explanation.
func RenderResult(txn model.TransactionInput, result model.CategorizationResult) string {
	var b strings.Builder

	category := result.Category
	if result.Subcategory != "" {
		category += " / " + result.Subcategory
	}
	fmt.Fprintf(&b, "%s %s  %s\n",
		sourceIcon(result.Metadata.Source),
		BoldStyle.Render(category),
		confidenceStyle(result.Confidence).Render(fmt.Sprintf("%.0f%%", result.Confidence*100)))

	meta := []string{"source: " + string(result.Metadata.Source)}
	if result.Metadata.Provider != "" {
		meta = append(meta, "provider: "+result.Metadata.Provider)
	}
	if result.Metadata.Model != "" {
		meta = append(meta, "model: "+result.Metadata.Model)
	}
	if result.Metadata.Attempts > 0 {
		meta = append(meta, fmt.Sprintf("attempts: %d", result.Metadata.Attempts))
	}
	b.WriteString(SubtleStyle.Render(strings.Join(meta, "  ")) + "\n\n")

	exp := result.Explanation
	b.WriteString(exp.Reasoning + "\n")

	if len(exp.Evidence) > 0 {
		b.WriteString("\n" + BoldStyle.Render("Evidence") + "\n")
		for _, item := range exp.Evidence {
			b.WriteString("  • " + item + "\n")
		}
	}
	if len(exp.Alternatives) > 0 {
		b.WriteString("\n" + BoldStyle.Render("Alternatives") + "\n")
		for _, alt := range exp.Alternatives {
			fmt.Fprintf(&b, "  %-24s %s\n", alt.Category, SubtleStyle.Render(fmt.Sprintf("%.0f%%", alt.Confidence*100)))
		}
	}
	if len(exp.DataSources) > 0 {
		b.WriteString("\n" + SubtleStyle.Render("sources: "+strings.Join(exp.DataSources, ", ")))
	}

	title := txn.Description
	if !txn.Amount.IsZero() {
		title = fmt.Sprintf("%s (%s)", txn.Description, txn.Amount.StringFixed(2))
	}
	return RenderBox(title, strings.TrimRight(b.String(), "\n"))
}

// RenderSummary renders the outcome counts of a batch run.
func RenderSummary(summary engine.BatchSummary) string {
	rows := [][2]string{
		{"Transactions", fmt.Sprintf("%d", summary.Total)},
		{RuleIcon + " By rule", fmt.Sprintf("%d", summary.RuleMatches)},
		{RobotIcon + " By AI", fmt.Sprintf("%d", summary.AIResults)},
		{WarningIcon + " Fallback", fmt.Sprintf("%d", summary.Fallbacks)},
		{"Invalid", fmt.Sprintf("%d", summary.Invalid)},
		{"Skipped", fmt.Sprintf("%d", summary.Skipped)},
		{"Elapsed", summary.ProcessingTime.Round(time.Millisecond).String()},
	}

	var b strings.Builder
	for _, row := range rows {
		b.WriteString(TableCellStyle.Width(16).Render(row[0]) + row[1] + "\n")
	}
	return RenderBox(ChartIcon+" Batch summary", strings.TrimRight(b.String(), "\n"))
}

func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}
	lines := []string{TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))}

	for _, row := range rows {
		for i, cell := range row {
			cells[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(lines, "\n")
}

// RenderRules renders rules as a table.
func RenderRules(rules []model.CategorizationRule) string {
	if len(rules) == 0 {
		return SubtleStyle.Render("No rules.")
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		status := "active"
		if !r.IsActive {
			status = "inactive"
		}
		rows = append(rows, []string{
			r.ID,
			r.Pattern,
			r.Category,
			string(r.Origin),
			fmt.Sprintf("%.2f", r.Confidence),
			fmt.Sprintf("%.2f", r.Accuracy),
			fmt.Sprintf("%d", r.UsageCount),
			status,
		})
	}
	return renderTable([]string{"ID", "PATTERN", "CATEGORY", "ORIGIN", "CONF", "ACC", "USES", "STATUS"}, rows)
}

// RenderProviders renders the registry with an optional observed share
// per provider.
func RenderProviders(providers []llm.ProviderConfig, defaultID string, share map[string]float64) string {
	rows := make([][]string, 0, len(providers))
	for _, p := range providers {
		id := p.ID
		if id == defaultID {
			id += " *"
		}
		caps := make([]string, len(p.Capabilities))
		for i, c := range p.Capabilities {
			caps[i] = string(c)
		}
		row := []string{
			id,
			p.AdapterKind(),
			p.Model,
			fmt.Sprintf("%.0f", p.Weight),
			fmt.Sprintf("%d", p.MaxRetries),
			p.Timeout.String(),
			strings.Join(caps, ","),
		}
		if share != nil {
			row = append(row, fmt.Sprintf("%.1f%%", share[p.ID]*100))
		}
		rows = append(rows, row)
	}
	headers := []string{"ID", "KIND", "MODEL", "WEIGHT", "RETRIES", "TIMEOUT", "CAPABILITIES"}
	if share != nil {
		headers = append(headers, "SELECTED")
	}
	return renderTable(headers, rows)
}
