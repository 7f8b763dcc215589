package pipeline

import (
	"encoding/json"

	"mediscribe/api/internal/pharmacist"
	"mediscribe/api/internal/util"
)

// PatientInfo is whatever identifying detail the vision model could read
// off the prescription header. Every field is optional.
type PatientInfo struct {
	Name string `json:"name,omitempty"`
	Age  string `json:"age,omitempty"`
	Date string `json:"date,omitempty"`
}

// ExtractionResult is the structured output of the extraction stage.
// It exists even when the model's payload cannot be parsed; in that case
// only RawText is populated.
type ExtractionResult struct {
	RawText             string                  `json:"raw_text"`
	Medications         []pharmacist.Medication `json:"medications"`
	PatientInfo         PatientInfo             `json:"patient_info"`
	SpecialInstructions string                  `json:"special_instructions"`
}

// parseExtraction interprets the vision model's response. Models wrap
// JSON in markdown fences often enough that the fences are stripped
// before parsing. The bool reports whether the structured payload was
// usable; when it is not, the caller degrades to a raw-text-only result.
func parseExtraction(raw string) (ExtractionResult, bool) {
	var out ExtractionResult
	if err := json.Unmarshal([]byte(util.StripCodeFences(raw)), &out); err != nil {
		return ExtractionResult{RawText: raw}, false
	}
	return out, true
}

// Result is the final record of one pipeline run. AudioPath is nil when
// synthesis was not requested; it is never an empty string.
type Result struct {
	RawText             string                  `json:"raw_text"`
	MedicationsClean    []pharmacist.Medication `json:"medications_clean"`
	UrduText            string                  `json:"urdu_text"`
	PatientInfo         PatientInfo             `json:"patient_info"`
	SpecialInstructions string                  `json:"special_instructions"`
	AudioPath           *string                 `json:"audio_path,omitempty"`
}

// Request carries the caller's inputs for one run.
type Request struct {
	ImagePath       string
	PatientName     string
	SynthesizeAudio bool
	AudioOutputPath string
	// Voice overrides the orchestrator's default voice spec when non-nil.
	Voice *VoiceSpec
}
