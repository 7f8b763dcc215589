// Package sanitize strips markdown artifacts out of model-generated
// narrative text before it reaches speech synthesis, so the voice never
// reads out asterisks or hashtags.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	asteriskRuns = regexp.MustCompile(`\*+`)
	markupChars  = regexp.MustCompile("[#_~`]")
	newlineRuns  = regexp.MustCompile(`\n{3,}`)
	spaceRuns    = regexp.MustCompile(`  +`)
)

// Text removes markdown characters, collapses excess blank lines and
// spaces, and trims each line. Applying it twice gives the same result
// as applying it once.
func Text(text string) string {
	text = asteriskRuns.ReplaceAllString(text, "")
	text = markupChars.ReplaceAllString(text, "")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	// Trimming lines can turn whitespace-only lines into empty ones and
	// recreate long blank runs, so collapse once more to stay idempotent.
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
