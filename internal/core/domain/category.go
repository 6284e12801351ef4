package domain

// Category is the classified kind of a captured failure.
type Category string

const (
	CategoryChunkLoad     Category = "chunk_load"
	CategoryNullReference Category = "null_reference"
	CategoryNetwork       Category = "network"
	CategorySyntax        Category = "syntax"
	CategoryValidation    Category = "validation"
	CategoryAuth          Category = "auth"
	CategoryDatabase      Category = "database"
	CategoryBusinessLogic Category = "business_logic"
	CategoryUI            Category = "ui"
	CategoryUnknown       Category = "unknown"
)

var categoryLabels = map[Category]string{
	CategoryChunkLoad:     "Update required",
	CategoryNullReference: "Missing data",
	CategoryNetwork:       "Connection problem",
	CategorySyntax:        "Invalid response",
	CategoryValidation:    "Invalid input",
	CategoryAuth:          "Authentication",
	CategoryDatabase:      "Data unavailable",
	CategoryBusinessLogic: "Operation failed",
	CategoryUI:            "Display error",
	CategoryUnknown:       "Unexpected error",
}

// Label returns the human-readable badge text for the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[CategoryUnknown]
}

// Baseline is the severity assigned to a category when nothing else raises it.
func (c Category) Baseline() Severity {
	switch c {
	case CategoryChunkLoad:
		return SeverityCritical
	case CategoryNullReference, CategoryAuth, CategoryDatabase:
		return SeverityHigh
	case CategoryValidation:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}
