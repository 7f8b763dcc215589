package pharmacist

// Alias maps a brand/shorthand drug name to its canonical form.
// Matching is a case-insensitive prefix test, and table order decides
// which alias wins when several match, so aliases are kept as a slice.
type Alias struct {
	Name      string
	Canonical string
}

// Table holds the reference data the pharmacist works against. It is
// built once at startup and never mutated afterwards, so it is safe to
// share across concurrent pipeline runs.
type Table struct {
	Aliases       []Alias
	Abbreviations map[string]string
}

// DefaultTable returns the built-in alias and abbreviation tables.
func DefaultTable() *Table {
	return &Table{
		Aliases: []Alias{
			{"Tabzole", "Tabzole (Albendazole)"},
			{"Amoxil", "Amoxicillin"},
			{"Amoxycillin", "Amoxicillin"},
			{"Paracetamol", "Paracetamol"},
			{"Augmentin", "Amoxicillin-Clavulanate"},
			{"Brufen", "Ibuprofen"},
			{"Disprin", "Aspirin"},
			{"Flagyl", "Metronidazole"},
		},
		Abbreviations: map[string]string{
			"OD":   "once daily",
			"BD":   "twice daily",
			"BID":  "twice daily",
			"TDS":  "three times daily",
			"TID":  "three times daily",
			"QID":  "four times daily",
			"HS":   "at bedtime",
			"SOS":  "as needed",
			"PRN":  "as needed",
			"AC":   "before meals",
			"PC":   "after meals",
			"STAT": "immediately",
			"QH":   "every hour",
			"Q4H":  "every 4 hours",
			"Q6H":  "every 6 hours",
			"Q8H":  "every 8 hours",
		},
	}
}
