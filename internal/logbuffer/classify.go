package logbuffer

import "strings"

// levelRule and categoryRule are table-driven classification rules, kept
// independent of Buffer so they are unit-testable on their own.
type levelRule struct {
	substrings []string
	level      Level
}

var levelRules = []levelRule{
	{substrings: []string{"[error]", "error:", "uncaught", "exception"}, level: LevelError},
	{substrings: []string{"[warn", "warning"}, level: LevelWarning},
	{substrings: []string{"[debug]"}, level: LevelDebug},
}

type categoryRule struct {
	substrings []string
	category   Category
}

var categoryRules = []categoryRule{
	{substrings: []string{"[network]", "fetch", "http"}, category: CategoryNetwork},
	{substrings: []string{"[renderer]", "[browser]"}, category: CategoryRenderer},
	{substrings: []string{"[security]", "cors", "csp"}, category: CategorySecurity},
	{substrings: []string{"[ipc]"}, category: CategoryIPC},
	{substrings: []string{"[performance]", "memory", "cpu"}, category: CategoryPerformance},
}

func classifyLevel(lower string) (Level, bool) {
	for _, rule := range levelRules {
		for _, s := range rule.substrings {
			if strings.Contains(lower, s) {
				return rule.level, true
			}
		}
	}
	return LevelInfo, false
}

func classifyCategory(lower, defaultCategory string) Category {
	for _, rule := range categoryRules {
		for _, s := range rule.substrings {
			if strings.Contains(lower, s) {
				return rule.category
			}
		}
	}
	return Category(defaultCategory)
}

// classifyDirect implements the direct-push classification rules: stderr
// defaults to error, then the same substring rules may upgrade/downgrade
// the level for stdout lines only.
func classifyDirect(line string, source Source) (Level, Category) {
	lower := strings.ToLower(line)
	level, _ := classifyLevel(lower)
	if source == SourceStderr {
		level = LevelError
	}
	category := classifyCategory(lower, string(CategoryConsole))
	return level, category
}

// classifyFile implements the file-tailer classification rules: the level
// rules always apply; unmatched category falls back to the file's default.
func classifyFile(line string, defaultCategory Category) (Level, Category) {
	lower := strings.ToLower(line)
	level, _ := classifyLevel(lower)
	category := classifyCategory(lower, string(defaultCategory))
	return level, category
}
