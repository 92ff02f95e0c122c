package news

// Vocabulary is the immutable keyword configuration passed explicitly to the
// ranker and the heuristic clusterer.
type Vocabulary struct {
	// Urgency terms score 3 points each in the ranker.
	Urgency []string
	// Vital terms mark a heuristic group as vital.
	Vital []string
	// AreaPriority is scanned in order; first substring hit wins.
	AreaPriority []Area
	// StatusPriority is scanned in order; first substring hit wins.
	StatusPriority []SecurityStatus
	// PlaceholderHost marks seed/mock URLs excluded from top updates.
	PlaceholderHost string
}

// DefaultVocabulary returns the built-in Hebrew vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Urgency: []string{
			"פיקוד העורף", "הנחיות", "אזהרה", "אזעקה", "ירי", "חירום",
			"חסימה", "סגירה", "תקלה", "השבתה", "שביתה", "בריאות",
			"משרד הבריאות", "תחבורה", "רכבת", "כביש", "חשמל", "מים",
		},
		Vital: []string{
			"פיקוד העורף", "הנחיות", "חסימה", "כביש", "שביתה", "השבתה",
			"תקלה", "אזהרה", "סגירה", "בריאות", "חירום", "ירי", "אזעקה",
		},
		AreaPriority:    []Area{"צפון", "דרום"},
		StatusPriority:  []SecurityStatus{StatusOver, StatusInProgress, StatusOpen},
		PlaceholderHost: "example.com",
	}
}
