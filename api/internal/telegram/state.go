package telegram

import (
	"sync"
	"time"
)

const (
	// Album photos arrive as separate updates; wait this long after the
	// last one before processing the batch.
	debounce  = 1200 * time.Millisecond
	maxPixels = 18_000_000
)

type photoBatch struct {
	ChatID       int64
	Key          string // "grp:<mediaGroupID>" | "chat:<chatID>"
	MediaGroupID string
	PatientName  string

	mu     sync.Mutex
	images [][]byte
	timer  *time.Timer
}

var batches sync.Map // key -> *photoBatch
