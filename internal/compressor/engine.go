package compressor

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutputInUse is reported when another in-flight job already writes the same output path.
var ErrOutputInUse = errors.New("output path is being written by another job")

var (
	sharedOnce   sync.Once
	sharedEngine *Engine
)

// Engine bounds the encode work running at once and tracks output paths
// claimed by in-flight jobs. One Engine is shared by the whole process.
type Engine struct {
	slots chan struct{}

	mu       sync.Mutex
	reserved map[string]struct{}
}

// InitEngine creates the process-wide Engine on its first call and returns it.
// Later calls return the same Engine and ignore workers. Callers size it
// with config.EngineWorkers.
func InitEngine(workers int) *Engine {
	sharedOnce.Do(func() {
		sharedEngine = NewEngine(workers)
	})
	return sharedEngine
}

// NewEngine returns an Engine running at most workers encodes concurrently.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		slots:    make(chan struct{}, workers),
		reserved: make(map[string]struct{}),
	}
}

// Workers returns the pool size.
func (e *Engine) Workers() int {
	return cap(e.slots)
}

// Run blocks until a slot is free, then runs fn in the calling goroutine.
func (e *Engine) Run(fn func()) {
	e.slots <- struct{}{}
	defer func() { <-e.slots }()
	fn()
}

// claim picks an output path via pick and reserves it until release.
// pick receives a predicate reporting whether a candidate is taken. A pick
// that ignores the predicate (overwrite naming) may land on a path another
// job holds; that is reported as ErrOutputInUse and nothing is reserved.
func (e *Engine) claim(pick func(taken func(string) bool) string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := pick(func(candidate string) bool {
		if _, ok := e.reserved[candidate]; ok {
			return true
		}
		return fileExists(candidate)
	})
	if _, ok := e.reserved[path]; ok {
		return "", fmt.Errorf("%w: %s", ErrOutputInUse, path)
	}
	e.reserved[path] = struct{}{}
	return path, nil
}

func (e *Engine) release(path string) {
	e.mu.Lock()
	delete(e.reserved, path)
	e.mu.Unlock()
}
