package telegram

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func encodeJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestStitchPages(t *testing.T) {
	pages := [][]byte{
		encodeJPEG(t, 100, 40, color.Black),
		encodeJPEG(t, 60, 30, color.White),
	}
	out, err := stitchPages(pages)
	if err != nil {
		t.Fatal(err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output not decodable: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 100 || b.Dy() != 70 {
		t.Errorf("stitched size = %dx%d, want 100x70", b.Dx(), b.Dy())
	}
}

func TestStitchPagesDownsamplesLargeInput(t *testing.T) {
	// 5000x2000 twice exceeds the pixel cap and must be scaled down.
	pages := [][]byte{
		encodeJPEG(t, 5000, 2000, color.White),
		encodeJPEG(t, 5000, 2000, color.White),
	}
	out, err := stitchPages(pages)
	if err != nil {
		t.Fatal(err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx()*b.Dy() > maxPixels {
		t.Errorf("stitched image has %d pixels, cap is %d", b.Dx()*b.Dy(), maxPixels)
	}
}

func TestStitchPagesRejectsGarbage(t *testing.T) {
	if _, err := stitchPages([][]byte{[]byte("not an image")}); err == nil {
		t.Fatal("expected error for undecodable input")
	}
}

func TestEnqueuePhotoBatching(t *testing.T) {
	key := "grp:test-enqueue"
	noFire := func(string) {}

	if !enqueuePhoto(key, 7, "test-enqueue", "Ali", []byte("p1"), time.Hour, noFire) {
		t.Error("first page not reported as first")
	}
	if enqueuePhoto(key, 7, "test-enqueue", "", []byte("p2"), time.Hour, noFire) {
		t.Error("second page reported as first")
	}

	images, chatID, patientName := takeBatch(key)
	if len(images) != 2 || chatID != 7 || patientName != "Ali" {
		t.Errorf("batch = %d pages, chat %d, patient %q", len(images), chatID, patientName)
	}

	// Batch is gone; draining again yields nothing, and the next page
	// starts a fresh batch.
	if images, _, _ := takeBatch(key); images != nil {
		t.Error("drained batch still present")
	}
	if !enqueuePhoto(key, 7, "test-enqueue", "", []byte("p3"), time.Hour, noFire) {
		t.Error("page after drain not reported as first")
	}
	takeBatch(key)
}

func TestEnqueuePhotoConcurrentFirstPage(t *testing.T) {
	key := "grp:test-concurrent"
	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if enqueuePhoto(key, 9, "test-concurrent", "", []byte("p"), time.Hour, func(string) {}) {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := firsts.Load(); n != 1 {
		t.Errorf("%d pages reported as first, want exactly 1", n)
	}
	if images, _, _ := takeBatch(key); len(images) != 16 {
		t.Errorf("batch holds %d pages, want 16", len(images))
	}
}

func TestEnqueuePhotoDebounceFiresOnce(t *testing.T) {
	key := "grp:test-debounce"
	var fired atomic.Int32
	fire := func(k string) {
		if k == key {
			fired.Add(1)
		}
		takeBatch(k)
	}

	enqueuePhoto(key, 3, "test-debounce", "", []byte("p1"), 20*time.Millisecond, fire)
	enqueuePhoto(key, 3, "test-debounce", "", []byte("p2"), 20*time.Millisecond, fire)

	time.Sleep(100 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("debounce fired %d times, want 1", n)
	}
}

func TestDecodeByMagic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if _, err := decodeByMagic(buf.Bytes()); err != nil {
		t.Errorf("png decode: %v", err)
	}
	if _, err := decodeByMagic([]byte{0x00, 0x01}); err == nil {
		t.Error("expected error for unknown magic")
	}
}
