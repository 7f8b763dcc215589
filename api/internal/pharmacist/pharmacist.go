// Package pharmacist standardizes medication lines extracted from a
// prescription photo: drug names are matched against a known alias table
// and dosing-schedule abbreviations are expanded to plain phrases.
package pharmacist

import (
	"regexp"
	"strings"
)

// Confidence is the vision model's own estimate for a medication line.
type Confidence string

const (
	ConfidenceHigh Confidence = "High"
	ConfidenceMed  Confidence = "Med"
	ConfidenceLow  Confidence = "Low"
)

// ParseConfidence maps a free-form confidence value onto the known set,
// defaulting to Low for anything missing or unrecognized.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.TrimSpace(s)) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMed:
		return ConfidenceMed
	default:
		return ConfidenceLow
	}
}

// Medication is one prescription line. The same shape is used before and
// after correction; Correct returns entries with Name and Schedule
// canonicalized.
type Medication struct {
	Name       string     `json:"name"`
	Dose       string     `json:"dose"`
	Schedule   string     `json:"schedule"`
	Confidence Confidence `json:"confidence"`
}

// Pharmacist applies the reference table to raw medication lines.
type Pharmacist struct {
	table *Table
}

func New(table *Table) *Pharmacist {
	if table == nil {
		table = DefaultTable()
	}
	return &Pharmacist{table: table}
}

var nonDrugChars = regexp.MustCompile(`[^A-Za-z0-9\s-]`)

// NormalizeName cleans a raw drug name and resolves it against the alias
// table. The first alias (in table order) whose name is a case-insensitive
// prefix of the cleaned input wins; with no match the cleaned name is
// returned unchanged. Total: never fails, may return "".
func (p *Pharmacist) NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	clean := strings.TrimSpace(nonDrugChars.ReplaceAllString(name, ""))
	lower := strings.ToLower(clean)
	for _, a := range p.table.Aliases {
		if strings.HasPrefix(lower, strings.ToLower(a.Name)) {
			return a.Canonical
		}
	}
	return clean
}

// ExpandSchedule replaces known abbreviation tokens ("OD", "TDS", ...)
// with their spoken phrases. Lookup keys are uppercased with trailing
// periods/commas stripped; tokens without a table entry keep their
// original spelling. Numeric counts like "1-0-1" pass through untouched.
func (p *Pharmacist) ExpandSchedule(schedule string) string {
	if schedule == "" {
		return ""
	}
	parts := strings.Fields(schedule)
	expanded := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.Trim(strings.ToUpper(part), ".,")
		if phrase, ok := p.table.Abbreviations[token]; ok {
			expanded = append(expanded, phrase)
		} else {
			expanded = append(expanded, part)
		}
	}
	return strings.Join(expanded, " ")
}

// Correct runs the full standardization over a draft medication list.
// Entries whose normalized name comes out empty are dropped — an OCR
// artifact row is useless to the patient — and everything else keeps its
// input order, duplicates included. Dose text is trimmed but otherwise
// left alone; units are not canonicalized.
func (p *Pharmacist) Correct(drafts []Medication) []Medication {
	cleaned := make([]Medication, 0, len(drafts))
	for _, med := range drafts {
		name := p.NormalizeName(strings.TrimSpace(med.Name))
		if name == "" {
			continue
		}
		cleaned = append(cleaned, Medication{
			Name:       name,
			Dose:       strings.TrimSpace(med.Dose),
			Schedule:   p.ExpandSchedule(strings.TrimSpace(med.Schedule)),
			Confidence: ParseConfidence(string(med.Confidence)),
		})
	}
	return cleaned
}
