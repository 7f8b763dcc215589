// Package pipeline sequences the four prescription-processing stages:
// extraction (vision model), correction (pharmacist tables), translation
// (language model) and optional speech synthesis. One Orchestrator serves
// any number of concurrent runs; all per-run state is local.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"mediscribe/api/internal/pharmacist"
	"mediscribe/api/internal/sanitize"
	"mediscribe/api/internal/util"
)

var supportedImageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".gif": true, ".tiff": true, ".webp": true,
}

// IsSupportedImage reports whether the file extension is one the
// extraction stage accepts. The check is case-insensitive.
func IsSupportedImage(path string) bool {
	return supportedImageExt[strings.ToLower(filepath.Ext(path))]
}

type Orchestrator struct {
	vision       Vision
	linguist     Linguist
	speech       Speech
	pharmacist   *pharmacist.Pharmacist
	defaultVoice VoiceSpec
	log          zerolog.Logger
}

func NewOrchestrator(vision Vision, linguist Linguist, speech Speech,
	ph *pharmacist.Pharmacist, defaultVoice VoiceSpec, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		vision:       vision,
		linguist:     linguist,
		speech:       speech,
		pharmacist:   ph,
		defaultVoice: defaultVoice,
		log:          log,
	}
}

// Process runs one prescription image through the full pipeline.
//
// Failure policy: a malformed (but present) extraction payload degrades to
// a raw-text-only result and the run continues; every other stage failure
// aborts and is returned as *Error tagged with the stage. There is no
// retry and no cancellation once extraction has been launched beyond
// whatever ctx the caller supplies.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	image, err := o.validateImage(req.ImagePath)
	if err != nil {
		return nil, err
	}

	// Stage 1: extraction.
	raw, err := o.vision.Extract(ctx, image, util.SniffMimeHTTP(image), visionPrompt)
	if err != nil {
		return nil, stageErr(StageExtraction, KindUpstream, err)
	}
	extraction, ok := parseExtraction(raw)
	if !ok {
		// Sole recovery path: keep the raw text, continue with no
		// medications.
		o.log.Warn().Str("image", req.ImagePath).
			Msg("extraction payload not parseable, degrading to raw text")
	}
	o.log.Debug().Int("medications", len(extraction.Medications)).
		Msg("extraction complete")

	// Stage 2: correction. Pure, cannot fail.
	cleaned := o.pharmacist.Correct(extraction.Medications)
	o.log.Debug().Int("kept", len(cleaned)).Msg("correction complete")

	result := &Result{
		RawText:             extraction.RawText,
		MedicationsClean:    cleaned,
		PatientInfo:         extraction.PatientInfo,
		SpecialInstructions: extraction.SpecialInstructions,
	}

	// Stage 3: translation, skipped entirely for an empty list.
	urdu := FallbackNoMedication
	if len(cleaned) > 0 {
		urdu, err = o.linguist.Generate(ctx, buildUrduPrompt(cleaned, req.PatientName))
		if err != nil {
			perr := stageErr(StageTranslation, KindUpstream, err)
			perr.Partial = result
			return nil, perr
		}
	}

	// Stage 4: sanitize unconditionally, the prompt's no-markup rule is
	// advisory to the model only.
	result.UrduText = sanitize.Text(urdu)

	// Stage 5: synthesis, only when asked for.
	if req.SynthesizeAudio {
		path, err := o.synthesize(ctx, result.UrduText, req)
		if err != nil {
			var perr *Error
			if errors.As(err, &perr) {
				perr.Partial = result
			}
			return nil, err
		}
		result.AudioPath = &path
	}
	return result, nil
}

func (o *Orchestrator) validateImage(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, stageErr(StageExtraction, KindInvalidInput,
			fmt.Errorf("image file not found: %s", path))
	}
	if !IsSupportedImage(path) {
		return nil, stageErr(StageExtraction, KindInvalidInput,
			fmt.Errorf("unsupported image format: %s", filepath.Ext(path)))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, stageErr(StageExtraction, KindInvalidInput, err)
	}
	return b, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, text string, req Request) (string, error) {
	if req.AudioOutputPath == "" {
		return "", stageErr(StageSynthesis, KindInvalidInput,
			fmt.Errorf("audio output path is required when synthesis is requested"))
	}
	voice := o.defaultVoice
	if req.Voice != nil {
		voice = *req.Voice
	}
	audio, err := o.speech.Synthesize(ctx, text, voice)
	if err != nil {
		return "", stageErr(StageSynthesis, KindUpstream, err)
	}
	if err := os.WriteFile(req.AudioOutputPath, audio, 0o644); err != nil {
		return "", stageErr(StageSynthesis, KindUpstream,
			fmt.Errorf("write audio file: %w", err))
	}
	o.log.Info().Str("audio", req.AudioOutputPath).Int("bytes", len(audio)).
		Msg("synthesis complete")
	return req.AudioOutputPath, nil
}
