package avatar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-mimic/internal/log"
)

// AssetLoader loads one asset.
type AssetLoader interface {
	Load(ctx context.Context, src Source) (*Asset, error)
}

// Switcher replaces the active avatar asynchronously. A new binding is
// published only after it is fully built; readers keep the previous one
// until then. When requests overlap, the last one wins.
type Switcher struct {
	loader AssetLoader
	names  NodeNames

	current atomic.Pointer[Binding]

	mu     sync.Mutex // Protects gen and cancel
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OnChange is called after a new binding is published.
	OnChange func(*Binding)

	// OnError is called when a load fails. The previous binding stays.
	OnError func(src Source, err error)
}

// NewSwitcher creates a switcher with no active binding.
func NewSwitcher(loader AssetLoader, names NodeNames) *Switcher {
	return &Switcher{loader: loader, names: names}
}

// Current returns the active binding, or nil before the first load.
func (s *Switcher) Current() *Binding {
	return s.current.Load()
}

// Set starts loading src in the background and cancels any earlier load.
func (s *Switcher) Set(ctx context.Context, src Source) {
	gen, loadCtx := s.begin(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.load(loadCtx, gen, src)
	}()
}

// SetSync loads src and returns the published binding or the load error.
func (s *Switcher) SetSync(ctx context.Context, src Source) (*Binding, error) {
	gen, loadCtx := s.begin(ctx)
	return s.load(loadCtx, gen, src)
}

// Wait blocks until background loads finish.
func (s *Switcher) Wait() {
	s.wg.Wait()
}

// Close cancels any in-flight load and waits for it.
func (s *Switcher) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Switcher) begin(ctx context.Context) (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.gen++
	s.cancel = cancel
	return s.gen, loadCtx
}

func (s *Switcher) load(ctx context.Context, gen uint64, src Source) (*Binding, error) {
	asset, err := s.loader.Load(ctx, src)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if s.superseded(gen) {
			return nil, ErrSuperseded
		}
		var le *LoadError
		if !errors.As(err, &le) {
			err = &LoadError{Source: src.String(), Err: err}
		}
		log.Warn("avatar load failed, keeping previous avatar", "source", src.String(), "error", err)
		if s.OnError != nil {
			s.OnError(src, err)
		}
		return nil, err
	}

	binding := Bind(asset.Scene, s.names)
	binding.Source = src

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	s.current.Store(binding)
	s.mu.Unlock()

	log.Info("avatar switched", "asset", binding.AssetID, "source", src.String())
	if s.OnChange != nil {
		s.OnChange(binding)
	}
	return binding, nil
}

func (s *Switcher) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen
}
