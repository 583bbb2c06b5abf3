package analyzers

// WeightBudget is the byte allowance per resource class a page is scored
// against. Zero means the class is unbudgeted.
type WeightBudget struct {
	Name string

	TotalBytes      int64
	HTMLBytes       int64
	CSSBytes        int64
	JavaScriptBytes int64
	ImageBytes      int64
	FontBytes       int64

	MaxRequests int
}

// Built-in budget templates. Sizes reflect typical medians for each site
// category rather than aspirational minimums.
var budgetTemplates = map[string]WeightBudget{
	"default": {
		Name:            "default",
		TotalBytes:      2 * 1024 * 1024,
		HTMLBytes:       100 * 1024,
		CSSBytes:        150 * 1024,
		JavaScriptBytes: 500 * 1024,
		ImageBytes:      1024 * 1024,
		FontBytes:       200 * 1024,
		MaxRequests:     80,
	},
	"ecommerce": {
		Name:            "ecommerce",
		TotalBytes:      3 * 1024 * 1024,
		HTMLBytes:       150 * 1024,
		CSSBytes:        250 * 1024,
		JavaScriptBytes: 800 * 1024,
		ImageBytes:      1536 * 1024,
		FontBytes:       250 * 1024,
		MaxRequests:     120,
	},
	"blog": {
		Name:            "blog",
		TotalBytes:      1536 * 1024,
		HTMLBytes:       80 * 1024,
		CSSBytes:        100 * 1024,
		JavaScriptBytes: 300 * 1024,
		ImageBytes:      900 * 1024,
		FontBytes:       150 * 1024,
		MaxRequests:     60,
	},
	"corporate": {
		Name:            "corporate",
		TotalBytes:      2 * 1024 * 1024,
		HTMLBytes:       120 * 1024,
		CSSBytes:        200 * 1024,
		JavaScriptBytes: 600 * 1024,
		ImageBytes:      1024 * 1024,
		FontBytes:       200 * 1024,
		MaxRequests:     90,
	},
}

// BudgetForTemplate resolves a template name, falling back to "default"
// for unknown names
func BudgetForTemplate(name string) WeightBudget {
	if b, ok := budgetTemplates[name]; ok {
		return b
	}
	return budgetTemplates["default"]
}

// BudgetTemplateNames lists the built-in template names
func BudgetTemplateNames() []string {
	return []string{"default", "ecommerce", "blog", "corporate"}
}
