package models

// AnalyzerID identifies one of the built-in page analyzers
type AnalyzerID string

const (
	AnalyzerAccessibility AnalyzerID = "accessibility"
	AnalyzerPerformance   AnalyzerID = "performance"
	AnalyzerSEO           AnalyzerID = "seo"
	AnalyzerContentWeight AnalyzerID = "content-weight"
	AnalyzerMobile        AnalyzerID = "mobile"
)

// AllAnalyzers lists every built-in analyzer in execution order.
// Accessibility always runs first.
var AllAnalyzers = []AnalyzerID{
	AnalyzerAccessibility,
	AnalyzerPerformance,
	AnalyzerSEO,
	AnalyzerContentWeight,
	AnalyzerMobile,
}

// Section is the result payload produced by a single analyzer
type Section interface {
	SectionID() AnalyzerID
}

// AccessibilityStandard selects the rule set for the accessibility analyzer
type AccessibilityStandard string

const (
	StandardWCAG2A     AccessibilityStandard = "WCAG2A"
	StandardWCAG2AA    AccessibilityStandard = "WCAG2AA"
	StandardWCAG2AAA   AccessibilityStandard = "WCAG2AAA"
	StandardSection508 AccessibilityStandard = "Section508"
)
