package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mediscribe/api/internal/pharmacist"
)

// -- Fakes --

type fakeVision struct {
	calls int
	resp  string
	err   error
}

func (f *fakeVision) Extract(_ context.Context, _ []byte, _, _ string) (string, error) {
	f.calls++
	return f.resp, f.err
}

type fakeLinguist struct {
	calls      int
	resp       string
	err        error
	lastPrompt string
}

func (f *fakeLinguist) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.resp, f.err
}

type fakeSpeech struct {
	calls    int
	audio    []byte
	err      error
	lastText string
	lastSpec VoiceSpec
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string, spec VoiceSpec) ([]byte, error) {
	f.calls++
	f.lastText = text
	f.lastSpec = spec
	return f.audio, f.err
}

func writeTestImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	// Minimal JPEG magic so MIME sniffing has something to chew on.
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestOrchestrator(v *fakeVision, l *fakeLinguist, s *fakeSpeech) *Orchestrator {
	return NewOrchestrator(v, l, s, pharmacist.New(nil),
		VoiceSpec{VoiceID: "test-voice", ModelID: "test-model", Settings: DefaultVoiceSettings()},
		zerolog.Nop())
}

const brufenResponse = "```json\n" + `{
  "raw_text": "Brufen 400mg 1 tab TDS",
  "medications": [
    {"name": "Brufen", "dose": "400mg", "schedule": "1 tab TDS", "confidence": "High"}
  ],
  "patient_info": {"name": "Ali", "age": "42"},
  "special_instructions": "take after food"
}` + "\n```"

// -- Tests --

func TestProcessEndToEnd(t *testing.T) {
	vision := &fakeVision{resp: brufenResponse}
	linguist := &fakeLinguist{resp: "**آپ** صبح ایک گولی لیں۔"}
	speech := &fakeSpeech{}
	o := newTestOrchestrator(vision, linguist, speech)

	img := writeTestImage(t, "rx.jpg")
	res, err := o.Process(context.Background(), Request{ImagePath: img})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.RawText != "Brufen 400mg 1 tab TDS" {
		t.Errorf("raw_text = %q", res.RawText)
	}
	want := pharmacist.Medication{
		Name: "Ibuprofen", Dose: "400mg",
		Schedule: "1 tab three times daily", Confidence: pharmacist.ConfidenceHigh,
	}
	if len(res.MedicationsClean) != 1 || res.MedicationsClean[0] != want {
		t.Errorf("medications_clean = %+v, want [%+v]", res.MedicationsClean, want)
	}
	if res.UrduText != "آپ صبح ایک گولی لیں۔" {
		t.Errorf("urdu_text not sanitized: %q", res.UrduText)
	}
	if res.PatientInfo.Name != "Ali" || res.PatientInfo.Age != "42" {
		t.Errorf("patient_info = %+v", res.PatientInfo)
	}
	if res.SpecialInstructions != "take after food" {
		t.Errorf("special_instructions = %q", res.SpecialInstructions)
	}
	if res.AudioPath != nil {
		t.Errorf("audio_path should be absent when synthesis not requested, got %q", *res.AudioPath)
	}
	if speech.calls != 0 {
		t.Errorf("speech collaborator called %d times without a request", speech.calls)
	}
	if !strings.Contains(linguist.lastPrompt, "- Ibuprofen | 400mg | 1 tab three times daily") {
		t.Errorf("prompt missing medication line:\n%s", linguist.lastPrompt)
	}
}

func TestProcessPersonalizesPrompt(t *testing.T) {
	vision := &fakeVision{resp: brufenResponse}
	linguist := &fakeLinguist{resp: "ٹھیک ہے"}
	o := newTestOrchestrator(vision, linguist, &fakeSpeech{})

	img := writeTestImage(t, "rx.jpeg")
	if _, err := o.Process(context.Background(), Request{ImagePath: img, PatientName: "Fatima"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(linguist.lastPrompt, "Patient name: Fatima") {
		t.Errorf("prompt missing patient name:\n%s", linguist.lastPrompt)
	}
}

func TestProcessRejectsBadInput(t *testing.T) {
	vision := &fakeVision{resp: "{}"}
	o := newTestOrchestrator(vision, &fakeLinguist{}, &fakeSpeech{})

	// Unsupported extension.
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := o.Process(context.Background(), Request{ImagePath: path})
	assertStage(t, err, StageExtraction, KindInvalidInput)

	// Missing file.
	_, err = o.Process(context.Background(), Request{ImagePath: filepath.Join(t.TempDir(), "nope.jpg")})
	assertStage(t, err, StageExtraction, KindInvalidInput)

	if vision.calls != 0 {
		t.Errorf("vision called %d times despite invalid input", vision.calls)
	}
}

func TestProcessDegradesOnMalformedPayload(t *testing.T) {
	vision := &fakeVision{resp: "The image shows a prescription for Brufen."}
	linguist := &fakeLinguist{resp: "should not be used"}
	o := newTestOrchestrator(vision, linguist, &fakeSpeech{})

	img := writeTestImage(t, "rx.png")
	res, err := o.Process(context.Background(), Request{ImagePath: img})
	if err != nil {
		t.Fatalf("degraded run must not fail: %v", err)
	}
	if res.RawText != "The image shows a prescription for Brufen." {
		t.Errorf("raw_text = %q", res.RawText)
	}
	if len(res.MedicationsClean) != 0 {
		t.Errorf("expected empty medication list, got %+v", res.MedicationsClean)
	}
	if res.UrduText != FallbackNoMedication {
		t.Errorf("urdu_text = %q, want fallback", res.UrduText)
	}
	if linguist.calls != 0 {
		t.Errorf("linguist called %d times for an empty medication list", linguist.calls)
	}
}

func TestProcessExtractionCallFailureIsFatal(t *testing.T) {
	vision := &fakeVision{err: errors.New("quota exceeded")}
	o := newTestOrchestrator(vision, &fakeLinguist{}, &fakeSpeech{})

	img := writeTestImage(t, "rx.webp")
	_, err := o.Process(context.Background(), Request{ImagePath: img})
	assertStage(t, err, StageExtraction, KindUpstream)
}

func TestProcessTranslationFailureIsFatal(t *testing.T) {
	vision := &fakeVision{resp: brufenResponse}
	linguist := &fakeLinguist{err: errors.New("model unavailable")}
	o := newTestOrchestrator(vision, linguist, &fakeSpeech{})

	img := writeTestImage(t, "rx.jpg")
	_, err := o.Process(context.Background(), Request{ImagePath: img})
	assertStage(t, err, StageTranslation, KindUpstream)

	var pe *Error
	if !errors.As(err, &pe) || pe.Partial == nil {
		t.Fatal("expected partial result on translation failure")
	}
	if pe.Partial.RawText != "Brufen 400mg 1 tab TDS" || len(pe.Partial.MedicationsClean) != 1 {
		t.Errorf("partial = %+v", pe.Partial)
	}
}

func TestProcessSynthesis(t *testing.T) {
	vision := &fakeVision{resp: brufenResponse}
	linguist := &fakeLinguist{resp: "صبح ایک گولی"}
	speech := &fakeSpeech{audio: []byte("mp3-bytes")}
	o := newTestOrchestrator(vision, linguist, speech)

	img := writeTestImage(t, "rx.jpg")
	out := filepath.Join(t.TempDir(), "voice.mp3")
	res, err := o.Process(context.Background(), Request{
		ImagePath:       img,
		SynthesizeAudio: true,
		AudioOutputPath: out,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.AudioPath == nil || *res.AudioPath != out {
		t.Fatalf("audio_path = %v, want %q", res.AudioPath, out)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("audio file not written: %v", err)
	}
	if string(b) != "mp3-bytes" {
		t.Errorf("audio file content = %q", b)
	}
	if speech.lastText != res.UrduText {
		t.Errorf("speech received %q, want sanitized urdu %q", speech.lastText, res.UrduText)
	}
	if speech.lastSpec.VoiceID != "test-voice" {
		t.Errorf("speech spec = %+v, want default voice", speech.lastSpec)
	}
}

func TestProcessSynthesisVoiceOverride(t *testing.T) {
	vision := &fakeVision{resp: brufenResponse}
	speech := &fakeSpeech{audio: []byte("x")}
	o := newTestOrchestrator(vision, &fakeLinguist{resp: "ok"}, speech)

	img := writeTestImage(t, "rx.jpg")
	custom := &VoiceSpec{VoiceID: "other", ModelID: "m2", Settings: VoiceSettings{Stability: 0.9}}
	_, err := o.Process(context.Background(), Request{
		ImagePath:       img,
		SynthesizeAudio: true,
		AudioOutputPath: filepath.Join(t.TempDir(), "v.mp3"),
		Voice:           custom,
	})
	if err != nil {
		t.Fatal(err)
	}
	if speech.lastSpec.VoiceID != "other" || speech.lastSpec.Settings.Stability != 0.9 {
		t.Errorf("voice override not applied: %+v", speech.lastSpec)
	}
}

func TestProcessSynthesisFailureIsFatal(t *testing.T) {
	vision := &fakeVision{resp: brufenResponse}
	speech := &fakeSpeech{err: errors.New("voice not found")}
	o := newTestOrchestrator(vision, &fakeLinguist{resp: "ok"}, speech)

	img := writeTestImage(t, "rx.jpg")
	_, err := o.Process(context.Background(), Request{
		ImagePath:       img,
		SynthesizeAudio: true,
		AudioOutputPath: filepath.Join(t.TempDir(), "v.mp3"),
	})
	assertStage(t, err, StageSynthesis, KindUpstream)
}

func TestIsSupportedImage(t *testing.T) {
	for _, p := range []string{"a.jpg", "b.JPEG", "c.png", "d.BMP", "e.gif", "f.tiff", "g.webp"} {
		if !IsSupportedImage(p) {
			t.Errorf("IsSupportedImage(%q) = false", p)
		}
	}
	for _, p := range []string{"a.pdf", "b.txt", "c", "d.mp3"} {
		if IsSupportedImage(p) {
			t.Errorf("IsSupportedImage(%q) = true", p)
		}
	}
}

func assertStage(t *testing.T, err error, stage Stage, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *pipeline.Error, got %T: %v", err, err)
	}
	if pe.Stage != stage || pe.Kind != kind {
		t.Errorf("error = stage %q kind %q, want stage %q kind %q", pe.Stage, pe.Kind, stage, kind)
	}
}
