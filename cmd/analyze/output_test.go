package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

func sampleResponse() *models.AnalysisResponse {
	ts := 130
	return &models.AnalysisResponse{
		Summary:  "Analyzed 2 segments. A talk about pricing.",
		Sections: []models.Section{{Title: "Q&A", Content: "Questions.", Timestamp: &ts}},
		Metadata: models.AnalysisMetadata{
			Model:        "gemini-2.5-flash",
			AnalysisMode: models.ModeSegmented,
			SegmentCount: 2,
			Billing: &models.BillingSnapshot{
				Usage:               &models.TokenUsage{PromptTokens: 300, CompletionTokens: 150, TotalTokens: 450},
				TotalCostUSD:        0.0006,
				Currency:            "USD",
				GlobalDailyLimitUSD: 50,
			},
		},
	}
}

func TestWriteAnalysis(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{"Analyzed 2 segments.", "## [02:10] Q&A", "Mode: segmented (2 segments)", "Cost: $0.000600 USD"}},
		{"json", []string{`"summary": "Analyzed 2 segments. A talk about pricing."`, `"analysisMode": "segmented"`, `"totalCostUsd": 0.0006`}},
		{"yaml", []string{"summary: Analyzed 2 segments. A talk about pricing.", "analysisMode: segmented", "promptTokens: 300"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeAnalysis(&buf, tt.format, sampleResponse()); err != nil {
				t.Fatalf("writeAnalysis() error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestWriteAnalysisError(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.AnalysisResponse{Error: "budget exceeded"}
	if err := writeAnalysis(&buf, "text", resp); err != nil {
		t.Fatalf("writeAnalysis() error: %v", err)
	}
	if got := buf.String(); got != "Error: budget exceeded\n" {
		t.Errorf("output = %q", got)
	}
}

func TestWriteSpend(t *testing.T) {
	user, remaining := 1.25, 3.75
	snap := &models.SpendSnapshot{
		Day:                 "2026-10-18",
		UserSpendTodayUSD:   &user,
		UserRemainingUSD:    &remaining,
		UserDailyLimitUSD:   5,
		GlobalSpendTodayUSD: 10,
		GlobalRemainingUSD:  40,
		GlobalDailyLimitUSD: 50,
	}

	var buf bytes.Buffer
	if err := writeSpend(&buf, "text", snap); err != nil {
		t.Fatalf("writeSpend() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"user", "$1.2500", "$3.7500", "global", "$40.0000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateOutput(t *testing.T) {
	for _, ok := range []string{"text", "json", "yaml"} {
		if err := validateOutput(ok); err != nil {
			t.Errorf("validateOutput(%q) error: %v", ok, err)
		}
	}
	if err := validateOutput("xml"); err == nil {
		t.Error("validateOutput(xml) succeeded")
	}
}

func TestRootCmdRequiresArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"only-one-arg"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Error("Execute() with one argument succeeded")
	}
}
