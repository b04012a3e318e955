// Package analyzer classifies free-form coding prompts into a task type,
// a complexity score, and a suggested backend tool. It is a pure function
// over its inputs: no I/O, no failure mode, deterministic for test parity.
package analyzer

import (
	"fmt"
	"strings"

	"taskrouter/internal/types"
)

// Tool names emitted by the decision list. They must match capability
// registry keys in the configuration.
const (
	ReasoningTool  = "reasoning-tool"
	GenerationTool = "generation-tool"
)

// Context carries the non-prompt inputs to analysis.
type Context struct {
	// Directory is the working directory of the request. Currently only
	// recorded in the reasoning string; classification is prompt-driven.
	Directory string
}

// Analyze maps a prompt to a TaskAnalysis. It always returns a value:
// unknown or empty input degrades to the decision list's fallback branch.
func Analyze(prompt string, ctx Context) types.TaskAnalysis {
	normalized := strings.ToLower(strings.TrimSpace(prompt))

	taskType, score := classify(normalized)
	markers := fileMarkers(prompt)
	complexity := scoreComplexity(normalized, taskType, len(markers))

	// No keyword matched anything: lowest-confidence default.
	if score == 0 {
		return types.TaskAnalysis{
			TaskType:      taskType,
			Complexity:    complexity,
			SuggestedTool: ReasoningTool,
			Confidence:    0.5,
			Reasoning:     "no clear task signals; defaulting to reasoning tool",
		}
	}

	tool, confidence, why := selectTool(taskType, complexity)
	reasoning := fmt.Sprintf("classified as %s (score %d, complexity %d): %s",
		taskType, score, complexity, why)
	if len(markers) > 0 {
		reasoning += fmt.Sprintf("; references %d file(s)", len(markers))
	}

	return types.TaskAnalysis{
		TaskType:      taskType,
		Complexity:    complexity,
		SuggestedTool: tool,
		Confidence:    confidence,
		Reasoning:     reasoning,
	}
}

// classify scores every task type against the keyword table and returns the
// winner plus its score. Ties go to the type declared first; zero matches
// fall back to code-generation with score 0.
func classify(normalized string) (types.TaskType, int) {
	best := types.TaskCodeGeneration
	bestScore := 0

	for _, entry := range keywordTable {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(normalized, kw) {
				score++
			}
		}
		// Strictly greater: the first type to reach the maximum wins.
		if score > bestScore {
			best = entry.taskType
			bestScore = score
		}
	}
	return best, bestScore
}

// scoreComplexity applies the base score for the task type, then the
// high/low keyword adjustments and the file marker bonus, clamped to [1,10].
func scoreComplexity(normalized string, taskType types.TaskType, markerCount int) int {
	complexity := baseComplexity[taskType]

	for _, kw := range highComplexityKeywords {
		if strings.Contains(normalized, kw) {
			complexity++
		}
	}
	for _, kw := range lowComplexityKeywords {
		if strings.Contains(normalized, kw) {
			complexity--
		}
	}

	switch {
	case markerCount > 3:
		complexity += 2
	case markerCount >= 2:
		complexity++
	}

	if complexity < 1 {
		complexity = 1
	}
	if complexity > 10 {
		complexity = 10
	}
	return complexity
}

// fileMarkers extracts distinct @-prefixed tokens: every run of
// non-whitespace characters immediately following an '@'.
func fileMarkers(prompt string) []string {
	seen := make(map[string]struct{})
	var markers []string

	fields := strings.Fields(prompt)
	for _, field := range fields {
		idx := strings.IndexByte(field, '@')
		if idx < 0 || idx+1 >= len(field) {
			continue
		}
		marker := field[idx+1:]
		if _, ok := seen[marker]; ok {
			continue
		}
		seen[marker] = struct{}{}
		markers = append(markers, marker)
	}
	return markers
}

// selectTool walks the priority-ordered decision list top to bottom; the
// first matching branch wins.
func selectTool(taskType types.TaskType, complexity int) (tool string, confidence float64, why string) {
	switch {
	case complexity > 6 || taskType == types.TaskArchitecture:
		return ReasoningTool, 0.9, "high complexity or architectural scope"
	case taskType == types.TaskCodeGeneration && complexity < 6:
		return GenerationTool, 0.85, "straightforward generation task"
	case taskType == types.TaskDebugging || taskType == types.TaskRefactoring:
		return ReasoningTool, 0.8, "requires multi-step reasoning over existing code"
	case taskType == types.TaskReview:
		return ReasoningTool, 0.9, "review benefits from deliberate reasoning"
	default:
		return ReasoningTool, 0.5, "fallback"
	}
}
