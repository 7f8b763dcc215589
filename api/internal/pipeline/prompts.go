package pipeline

import (
	"fmt"
	"strings"

	"mediscribe/api/internal/pharmacist"
)

// FallbackNoMedication is the Urdu sentence returned when the corrected
// medication list is empty. The language model is not called in that case.
const FallbackNoMedication = "کوئی دوائی نہیں ملی۔"

const visionPrompt = `You are a high-accuracy handwriting recognition assistant for medical prescriptions.

Task: Extract all text from the provided prescription image.

Requirements:
- Return raw text exactly as read (do not translate or paraphrase) under 'raw_text'.
- If uncertain about a word, add '[?]' after it.
- Identify likely medication names, dosages, and scheduling abbreviations and tag them as 'medications'.
- Provide confidence estimates (High/Med/Low) for each medication line.
- Extract patient information if visible (name, age, date).
- Include any special instructions or warnings.

Output format: JSON with keys:
{
  "raw_text": "string with all extracted text",
  "medications": [
    {"name": "medication name", "dose": "dosage", "schedule": "timing", "confidence": "High/Med/Low"}
  ],
  "patient_info": {
    "name": "patient name if visible",
    "age": "age if visible",
    "date": "prescription date if visible"
  },
  "special_instructions": "any special notes or warnings"
}

Return ONLY valid JSON, no additional text.`

// buildUrduPrompt embeds the cleaned medication list, one per line as
// "name | dose | schedule", into the translation instruction. The prompt
// forbids markup in the model's output; the sanitizer enforces that
// anyway.
func buildUrduPrompt(meds []pharmacist.Medication, patientName string) string {
	lines := make([]string, 0, len(meds))
	for _, m := range meds {
		lines = append(lines, fmt.Sprintf("- %s | %s | %s", m.Name, m.Dose, m.Schedule))
	}

	greeting := ""
	if patientName != "" {
		greeting = fmt.Sprintf("Patient name: %s\n\n", patientName)
	}

	return fmt.Sprintf(`You are an assistant that converts medical prescriptions into very simple, conversational Urdu suitable for low-literacy patients.

%sConstraints:
- Use short sentences and everyday Urdu (not formal literary Urdu).
- For each medicine, tell the name, how much to take, when to take it.
- If the schedule contains 'as needed', explain in Urdu when to take it.
- Avoid technical jargon; use simple words like 'subah, dopahar, raat' (صبح، دوپہر، رات) and numerals for doses.
- Make it sound natural and friendly for audio playback.
- Do NOT use any asterisks (*), bold formatting, hashtags (#), or special characters.
- Use plain text only with proper Urdu punctuation.
- Start with a friendly greeting like "Jee, suniye" or "Assalam-o-Alaikum".

Medications:
%s

Produce ONLY the final spoken Urdu instructions (no English, no JSON, no extra formatting, no asterisks or special characters).`,
		greeting, strings.Join(lines, "\n"))
}
