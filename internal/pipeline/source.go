package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
)

// ErrNoInput means the source has nothing fresh yet; the loop retries shortly.
var ErrNoInput = errors.New("pipeline: no input available")

// Image is one encoded capture at the target resolution.
type Image struct {
	Payload []byte
	Width   int
	Height  int
}

// Source yields captures on demand.
type Source interface {
	Capture(ctx context.Context) (Image, error)
}

// Encoder scales images to the target resolution and encodes them as JPEG.
type Encoder struct {
	Width   int
	Height  int
	Quality int
}

// Encode scales src to the encoder size and JPEG-encodes it.
func (e Encoder) Encode(src image.Image) (Image, error) {
	dst := image.NewRGBA(image.Rect(0, 0, e.Width, e.Height))
	if src.Bounds().Dx() == e.Width && src.Bounds().Dy() == e.Height {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: e.Quality}); err != nil {
		return Image{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	return Image{Payload: buf.Bytes(), Width: e.Width, Height: e.Height}, nil
}

// DirSource cycles through the JPEG and PNG images of a directory, scaled to
// the target resolution. Images are encoded once at construction.
type DirSource struct {
	mu     sync.Mutex
	frames []Image
	next   int
}

// NewDirSource loads every image in dir in name order.
func NewDirSource(dir string, enc Encoder) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}

	src := &DirSource{}
	for _, name := range names {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		encoded, err := enc.Encode(img)
		if err != nil {
			return nil, err
		}
		src.frames = append(src.frames, encoded)
	}
	return src, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func (s *DirSource) Capture(context.Context) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return img, nil
}

// Len returns the number of distinct frames.
func (s *DirSource) Len() int {
	return len(s.frames)
}

// PatternSource renders a moving box test pattern. It stands in for a camera
// when benchmarking without input files.
type PatternSource struct {
	enc Encoder

	mu   sync.Mutex
	tick int
}

func NewPatternSource(enc Encoder) *PatternSource {
	return &PatternSource{enc: enc}
}

func (s *PatternSource) Capture(context.Context) (Image, error) {
	s.mu.Lock()
	tick := s.tick
	s.tick++
	s.mu.Unlock()

	w, h := s.enc.Width, s.enc.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 32, G: 32, B: 48, A: 255}}, image.Point{}, draw.Src)

	size := min(w, h) / 4
	if size < 1 {
		size = 1
	}
	x := (tick * 7) % max(w-size, 1)
	y := (tick * 5) % max(h-size, 1)
	box := image.Rect(x, y, x+size, y+size)
	draw.Draw(img, box, &image.Uniform{C: color.RGBA{R: 230, G: 80, B: 40, A: 255}}, image.Point{}, draw.Src)

	return s.enc.Encode(img)
}

// MailboxSource holds the latest pushed capture. A push overwrites any capture
// that was not taken yet; Capture returns ErrNoInput until something new arrives.
type MailboxSource struct {
	mu      sync.Mutex
	pending *Image
	drops   uint64
}

func NewMailboxSource() *MailboxSource {
	return &MailboxSource{}
}

// Push offers a new capture. It never blocks.
func (s *MailboxSource) Push(img Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.drops++
	}
	s.pending = &img
}

func (s *MailboxSource) Capture(context.Context) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Image{}, ErrNoInput
	}
	img := *s.pending
	s.pending = nil
	return img, nil
}

// Overwritten returns how many pushed captures were replaced before being taken.
func (s *MailboxSource) Overwritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}
