package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

func renderTokens(tokens []domain.IndicatorToken) (string, error) {
	data := pterm.TableData{{"Indicator", "Type", "Defanged"}}
	for _, tok := range tokens {
		data = append(data, []string{tok.Value, string(tok.Type), yesNo(tok.WasDefanged)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// renderResult prints one indicator as a header line plus one table row per source,
// in display order.
func renderResult(result lookupResult) (string, error) {
	var b strings.Builder

	verdict := "✅ [CLEAN]"
	if result.Summary.Flagged > 0 {
		verdict = "🚨 [FLAGGED]"
	}
	fmt.Fprintf(&b, "\n%s %s (%s)", verdict, result.Indicator, result.Type)
	if result.WasDefanged {
		b.WriteString(" [defanged]")
	}
	fmt.Fprintf(&b, " - %d/%d sources answered", result.Summary.Succeeded, result.Summary.Queried)
	if len(result.Summary.FlaggedBy) > 0 {
		names := make([]string, len(result.Summary.FlaggedBy))
		for i, name := range result.Summary.FlaggedBy {
			names[i] = string(name)
		}
		fmt.Fprintf(&b, ", flagged by %s", strings.Join(names, ", "))
	}
	b.WriteString("\n")

	data := pterm.TableData{{"Source", "Status", "Detail"}}
	for _, name := range domain.SourceOrder {
		view, ok := result.Sources[name]
		if !ok {
			continue
		}
		if view.Success {
			data = append(data, []string{string(name), "ok", summarizeData(view.Data)})
		} else {
			data = append(data, []string{string(name), "failed", view.Error})
		}
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", err
	}
	b.WriteString(table)
	b.WriteString("\n")
	return b.String(), nil
}

// detailKeys are the report fields worth showing in one table cell, most telling first.
var detailKeys = []string{
	"detection_ratio", "abuse_confidence_score", "classification", "verdict",
	"pulse_count", "registrar", "org", "blacklist_status", "final_domain", "message",
}

const maxDetailLen = 60

func summarizeData(raw json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}

	var parts []string
	for _, key := range detailKeys {
		if v, ok := fields[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
		if len(parts) == 2 {
			break
		}
	}

	detail := strings.Join(parts, " ")
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen-3] + "..."
	}
	return detail
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
