// Package scene refreshes the background picture for the current scene.
//
// At most one image request is in flight at a time. A refresh asked for while
// one is running is dropped, not queued: the next scene change will ask again.
// Results are tagged with the generation they were requested under, and a
// Reset in between makes them stale so they are thrown away on arrival.
package scene

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/tatianab/adventure-gm/internal/models"
	"golang.org/x/sync/semaphore"
)

// Generator produces an image for a prompt. A nil image with a nil error
// means the service had nothing to return.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) (*models.SceneImage, error)
}

type Options struct {
	// StyleSuffix is appended to every scene summary before it is sent.
	StyleSuffix string
	// Dir, if set, receives a copy of every published image as scene.<ext>.
	Dir    string
	Logger zerolog.Logger
}

type Trigger struct {
	gen    Generator
	opts   Options
	logger zerolog.Logger

	sem      *semaphore.Weighted
	inFlight atomic.Bool
	updates  chan struct{}
	wg       sync.WaitGroup

	// mu orders publishing against Reset so a stale result can't slip in.
	mu         sync.Mutex
	generation atomic.Uint64
	current    atomic.Pointer[models.SceneImage]
}

func NewTrigger(gen Generator, opts Options) *Trigger {
	return &Trigger{
		gen:     gen,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "scene").Logger(),
		sem:     semaphore.NewWeighted(1),
		updates: make(chan struct{}, 1),
	}
}

// MaybeRefresh starts generating an image for summary in the background and
// reports whether it did. It never blocks on the generator.
func (t *Trigger) MaybeRefresh(summary string) bool {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false
	}
	if !t.sem.TryAcquire(1) {
		t.logger.Debug().Msg("image request already in flight, dropping refresh")
		return false
	}

	t.inFlight.Store(true)
	gen := t.generation.Load()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.sem.Release(1)
		defer t.inFlight.Store(false)
		t.refresh(summary, gen)
	}()
	return true
}

func (t *Trigger) refresh(summary string, gen uint64) {
	t.logger.Info().Str("summary", abbreviate(summary, 100)).Msg("generating scene image")

	img, err := t.gen.GenerateImage(context.Background(), summary+t.opts.StyleSuffix)
	if err != nil {
		t.logger.Warn().Err(err).Msg("scene image generation failed")
		return
	}
	if img == nil || len(img.Data) == 0 {
		t.logger.Warn().Msg("no scene image was generated")
		return
	}
	img.Summary = summary

	t.mu.Lock()
	if t.generation.Load() != gen {
		t.mu.Unlock()
		t.logger.Info().Uint64("generation", gen).Msg("discarding stale scene image")
		return
	}
	t.current.Store(img)
	t.mu.Unlock()

	t.save(img)
	t.notify()
	t.logger.Info().Int("bytes", len(img.Data)).Msg("scene image updated")
}

func (t *Trigger) save(img *models.SceneImage) {
	if t.opts.Dir == "" {
		return
	}
	ext := ".jpg"
	if strings.HasSuffix(img.MIMEType, "png") {
		ext = ".png"
	}
	if err := os.MkdirAll(t.opts.Dir, 0755); err != nil {
		t.logger.Warn().Err(err).Msg("failed to create image directory")
		return
	}
	path := filepath.Join(t.opts.Dir, "scene"+ext)
	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		t.logger.Warn().Err(err).Str("path", path).Msg("failed to write scene image")
	}
}

func (t *Trigger) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

// Reset forgets the current image and invalidates any request in flight.
func (t *Trigger) Reset() {
	t.mu.Lock()
	t.generation.Add(1)
	prev := t.current.Swap(nil)
	t.mu.Unlock()

	if prev != nil {
		t.notify()
	}
}

// Current returns the published image, or nil.
func (t *Trigger) Current() *models.SceneImage {
	return t.current.Load()
}

// InFlight reports whether an image request is running.
func (t *Trigger) InFlight() bool {
	return t.inFlight.Load()
}

// Updates signals after the published image changes. Signals coalesce.
func (t *Trigger) Updates() <-chan struct{} {
	return t.updates
}

// Wait blocks until background requests have finished.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
