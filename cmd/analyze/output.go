package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/segment"
)

func validateOutput(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
}

// writeStructured renders v as JSON or YAML. YAML goes through the JSON
// encoding first so both formats use the same camelCase field names.
func writeStructured(w io.Writer, format string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(body))
		return err
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func writeAnalysis(w io.Writer, format string, resp *models.AnalysisResponse) error {
	if resp == nil {
		return nil
	}
	if format != "text" {
		return writeStructured(w, format, resp)
	}
	if resp.Error != "" {
		_, err := fmt.Fprintf(w, "Error: %s\n", resp.Error)
		return err
	}

	var b strings.Builder
	if resp.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", resp.Summary)
	}
	for _, s := range resp.Sections {
		title := s.Title
		if s.Timestamp != nil {
			title = fmt.Sprintf("[%s] %s", segment.Clock(*s.Timestamp), s.Title)
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", title, s.Content)
	}

	m := resp.Metadata
	fmt.Fprintf(&b, "Model: %s  Mode: %s", m.Model, m.AnalysisMode)
	if m.SegmentCount > 0 {
		fmt.Fprintf(&b, " (%d segments)", m.SegmentCount)
	}
	if m.DowngradeReason != "" {
		fmt.Fprintf(&b, "  Downgraded: %s", m.DowngradeReason)
	}
	fmt.Fprintf(&b, "  Time: %dms\n", m.ProcessingTimeMs)
	if bill := m.Billing; bill != nil {
		if bill.Usage != nil {
			fmt.Fprintf(&b, "Tokens: %d prompt, %d completion, %d cached\n",
				bill.Usage.PromptTokens, bill.Usage.CompletionTokens, bill.Usage.CachedContentTokens)
		}
		fmt.Fprintf(&b, "Cost: $%.6f %s  Global today: $%.4f / $%.2f\n",
			bill.TotalCostUSD, bill.Currency, bill.GlobalSpendTodayUSD, bill.GlobalDailyLimitUSD)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeSpend(w io.Writer, format string, snap *models.SpendSnapshot) error {
	if format != "text" {
		return writeStructured(w, format, snap)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "DAY (UTC)\tSCOPE\tSPENT\tLIMIT\tREMAINING\n")
	if snap.UserSpendTodayUSD != nil {
		fmt.Fprintf(tw, "%s\tuser\t$%.4f\t$%.2f\t$%.4f\n",
			snap.Day, *snap.UserSpendTodayUSD, snap.UserDailyLimitUSD, deref(snap.UserRemainingUSD))
	}
	fmt.Fprintf(tw, "%s\tglobal\t$%.4f\t$%.2f\t$%.4f\n",
		snap.Day, snap.GlobalSpendTodayUSD, snap.GlobalDailyLimitUSD, snap.GlobalRemainingUSD)
	return tw.Flush()
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
