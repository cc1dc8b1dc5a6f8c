package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ── Loader ──────────────────────────────────────────────────
// A Loader turns a scheme + location into a byte stream.
// Implementations live in loader/schemes/, one file per scheme.

// Spec describes a scheme.
type Spec struct {
	Scheme string `json:"scheme"`
	Label  string `json:"label"`
	Remote bool   `json:"remote"`
}

// Request carries the location of the bytes. Only the member matching the
// scheme is consulted.
type Request struct {
	Path     string
	Basepath string
	Data     []byte
	Stream   *Stream
}

// Loader is the interface every scheme must implement.
type Loader interface {
	Spec() Spec
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// ErrUnsupported is returned for schemes with no registered loader.
var ErrUnsupported = errors.New("unsupported scheme")

// ── Loader Registry ────────────────────────────────────────
// Compile-time registration via init() in each scheme file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Loader{}
)

// Register registers a loader by its spec scheme.
func Register(l Loader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[l.Spec().Scheme] = l
}

// Get returns a registered loader by scheme.
func Get(scheme string) (Loader, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	l, ok := registry[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, scheme)
	}
	return l, nil
}

// List returns the specs of all registered loaders, sorted by scheme.
func List() []Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]Spec, 0, len(registry))
	for _, l := range registry {
		specs = append(specs, l.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Scheme < specs[j].Scheme })
	return specs
}

// ── Stream ──────────────────────────────────────────────────

// ErrStreamConsumed is returned when a stream source is opened a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// Stream wraps a caller-provided reader that can be opened only once.
type Stream struct {
	mu   sync.Mutex
	r    io.Reader
	used bool
}

// NewStream wraps r.
func NewStream(r io.Reader) *Stream { return &Stream{r: r} }

// Take hands out the reader the first time and ErrStreamConsumed afterwards.
func (s *Stream) Take() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		return nil, ErrStreamConsumed
	}
	s.used = true
	return s.r, nil
}
