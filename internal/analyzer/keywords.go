package analyzer

import "taskrouter/internal/types"

// typeKeywords pairs a task type with the substrings that vote for it.
// Declaration order is load-bearing: when two types reach the same score,
// the one declared first wins, and architecture is checked before all
// others.
type typeKeywords struct {
	taskType types.TaskType
	keywords []string
}

var keywordTable = []typeKeywords{
	{types.TaskArchitecture, []string{
		"architecture", "architect", "system design", "design pattern",
		"high-level design", "microservice", "scalability", "restructure the system",
	}},
	{types.TaskRefactoring, []string{
		"refactor", "restructure", "clean up", "cleanup", "simplify",
		"extract", "rename", "reorganize", "decouple",
	}},
	{types.TaskDebugging, []string{
		"debug", "bug", "crash", "broken", "not working", "fails",
		"error message", "exception", "stack trace", "regression",
	}},
	{types.TaskReview, []string{
		"review", "audit", "inspect", "critique", "look over", "feedback on",
	}},
	{types.TaskCodeGeneration, []string{
		"create", "generate", "implement", "write", "build", "add a",
		"new function", "new file", "scaffold", "boilerplate",
	}},
	{types.TaskDocumentation, []string{
		"document", "documentation", "docs", "readme", "comment", "docstring",
		"explain", "describe",
	}},
	{types.TaskQuickFix, []string{
		"quick fix", "typo", "quick", "small change", "minor", "one line",
		"one-liner", "tweak",
	}},
}

// baseComplexity is the per-type starting score before keyword and file
// marker adjustments.
var baseComplexity = map[types.TaskType]int{
	types.TaskArchitecture:   8,
	types.TaskRefactoring:    6,
	types.TaskDebugging:      5,
	types.TaskReview:         5,
	types.TaskCodeGeneration: 4,
	types.TaskDocumentation:  3,
	types.TaskQuickFix:       2,
}

// highComplexityKeywords each add one point when present.
var highComplexityKeywords = []string{
	"architecture", "entire", "workspace", "codebase", "all files",
	"end-to-end", "migration",
}

// lowComplexityKeywords each subtract one point when present.
var lowComplexityKeywords = []string{
	"quick", "single", "minor", "typo", "trivial", "one line",
}
