package parser

import (
	"testing"

	"github.com/alpsla/codequal/internal/types"
)

func TestExtractByPatterns_Variants(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantFile string
		wantLine int
	}{
		{
			name:     "file path block",
			input:    "File Path: src/auth.ts\nLine 42: token is logged in plain text",
			wantFile: "src/auth.ts",
			wantLine: 42,
		},
		{
			name:     "compiler style",
			input:    "src/auth.ts:42: token is logged in plain text",
			wantFile: "src/auth.ts",
			wantLine: 42,
		},
		{
			name:     "compiler style with column",
			input:    "src/auth.ts:42:7: token is logged in plain text",
			wantFile: "src/auth.ts",
			wantLine: 42,
		},
		{
			name:     "parenthesized line",
			input:    "The issue lives in src/auth.ts (line 42): token is logged in plain text",
			wantFile: "src/auth.ts",
			wantLine: 42,
		},
		{
			name:     "in file at line",
			input:    "There is a problem in src/auth.ts at line 42, token is logged in plain text",
			wantFile: "src/auth.ts",
			wantLine: 42,
		},
		{
			name:     "line in file",
			input:    "Line 42 in src/auth.ts: token is logged in plain text",
			wantFile: "src/auth.ts",
			wantLine: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := extractByPatterns(tt.input)
			if len(issues) != 1 {
				t.Fatalf("Expected 1 issue, got %d: %+v", len(issues), issues)
			}
			if issues[0].Location.File != tt.wantFile {
				t.Errorf("Expected file %q, got %q", tt.wantFile, issues[0].Location.File)
			}
			if issues[0].Location.Line != tt.wantLine {
				t.Errorf("Expected line %d, got %d", tt.wantLine, issues[0].Location.Line)
			}
		})
	}
}

func TestExtractByPatterns_FirstMatchPerKeyWins(t *testing.T) {
	// Both the file-path-block and compiler-style patterns can see
	// src/db.ts:7; only the first pattern's description must survive.
	input := "File Path: src/db.ts\nLine 7: query built by concatenation\n\n" +
		"src/db.ts:7: duplicate sighting with different wording"

	issues := extractByPatterns(input)
	if len(issues) != 1 {
		t.Fatalf("Expected duplicate file:line keys to collapse to 1 issue, got %d", len(issues))
	}
	if issues[0].Description != "query built by concatenation" {
		t.Errorf("Expected the earlier pattern's description to win, got %q", issues[0].Description)
	}
}

func TestExtractByPatterns_DistinctLinesKept(t *testing.T) {
	input := "src/db.ts:7: first problem here\nsrc/db.ts:9: second problem there"

	issues := extractByPatterns(input)
	if len(issues) != 2 {
		t.Fatalf("Expected 2 issues for distinct lines, got %d", len(issues))
	}
}

func TestExtractByPatterns_NoMatches(t *testing.T) {
	issues := extractByPatterns("Nothing here resembles a source location at all.")
	if len(issues) != 0 {
		t.Errorf("Expected no issues, got %d", len(issues))
	}
}

func TestExtractNumberedItems(t *testing.T) {
	input := "Findings:\n" +
		"1. The cache is never invalidated after writes\n" +
		"2) Request bodies are read fully into memory\n" +
		"3. Yes\n"

	issues := extractNumberedItems(input)
	if len(issues) != 2 {
		t.Fatalf("Expected 2 issues (short item skipped), got %d", len(issues))
	}
	if issues[0].Description != "The cache is never invalidated after writes" {
		t.Errorf("Unexpected first description: %q", issues[0].Description)
	}
	if issues[1].Description != "Request bodies are read fully into memory" {
		t.Errorf("Unexpected second description: %q", issues[1].Description)
	}
}

func TestExtractNumberedItems_DuplicatesCollapse(t *testing.T) {
	input := "1. The cache is never invalidated after writes\n" +
		"2. The cache is never invalidated after writes\n"

	issues := extractNumberedItems(input)
	if len(issues) != 1 {
		t.Errorf("Expected duplicate items to collapse, got %d issues", len(issues))
	}
}

func TestInferSeverity_Precedence(t *testing.T) {
	tests := []struct {
		name        string
		description string
		expected    types.Severity
	}{
		{"vulnerability is critical", "a vulnerability in session handling", types.SeverityCritical},
		{"critical keyword", "this is a critical flaw", types.SeverityCritical},
		{"injection is high", "user input reaches the shell via injection", types.SeverityHigh},
		{"deprecated is medium", "uses a deprecated API", types.SeverityMedium},
		{"minor is low", "minor naming inconsistency", types.SeverityLow},
		{"critical beats low when both present", "low impact normally, but critical under load", types.SeverityCritical},
		{"no keyword", "the loop copies the slice each pass", types.Severity("")},
		{"case insensitive", "CRITICAL race in shutdown", types.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferSeverity(tt.description); got != tt.expected {
				t.Errorf("InferSeverity(%q) = %q, want %q", tt.description, got, tt.expected)
			}
		})
	}
}

func TestInferCategory_Precedence(t *testing.T) {
	tests := []struct {
		name        string
		description string
		expected    types.Category
	}{
		{"injection is security", "SQL injection through the search box", types.CategorySecurity},
		{"sanitization stem matches", "input is not sanitized before rendering", types.CategorySecurity},
		{"bottleneck is performance", "serialization is the main bottleneck", types.CategoryPerformance},
		{"dependency wording", "the dependency tree pins an old transitive version", types.CategoryDependencies},
		{"test coverage wording", "test coverage is missing for the retry path", types.CategoryTesting},
		{"coupling is architecture", "tight coupling between storage and transport layers", types.CategoryArchitecture},
		{"security beats performance when both present", "slow sanitization enables an injection window", types.CategorySecurity},
		{"no keyword", "function is hard to read", types.Category("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferCategory(tt.description); got != tt.expected {
				t.Errorf("InferCategory(%q) = %q, want %q", tt.description, got, tt.expected)
			}
		})
	}
}

func TestCleanFilePath(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{`"src/a.ts"`, "src/a.ts"},
		{"src/a.ts,", "src/a.ts"},
		{"(src/a.ts)", "src/a.ts"},
		{" src/a.ts ", "src/a.ts"},
	}

	for _, tt := range tests {
		if got := cleanFilePath(tt.raw); got != tt.expected {
			t.Errorf("cleanFilePath(%q) = %q, want %q", tt.raw, got, tt.expected)
		}
	}
}
