package httpserver

import (
	"time"

	"mediscribe/api/internal/pharmacist"
	"mediscribe/api/internal/store"
)

type prescriptionDTO struct {
	UniqueID     string                  `json:"unique_id"`
	ImagePath    string                  `json:"image_path"`
	RawText      string                  `json:"raw_text"`
	UrduText     string                  `json:"urdu_text"`
	AudioPath    string                  `json:"audio_path"`
	Status       string                  `json:"status"`
	ErrorMessage string                  `json:"error_message"`
	CreatedAt    string                  `json:"created_at"`
	Medications  []pharmacist.Medication `json:"medications"`
}

func toDTO(p *store.Prescription) prescriptionDTO {
	meds := p.Medications
	if meds == nil {
		meds = []pharmacist.Medication{}
	}
	return prescriptionDTO{
		UniqueID:     p.UID.String(),
		ImagePath:    p.ImagePath,
		RawText:      p.RawText,
		UrduText:     p.UrduText,
		AudioPath:    p.AudioPath,
		Status:       p.Status,
		ErrorMessage: p.ErrorMessage,
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339),
		Medications:  meds,
	}
}
