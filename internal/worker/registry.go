package worker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	installTimeout = time.Minute
	// installBackoff is how long a failed install answers for itself before
	// the next navigation may try again
	installBackoff = 30 * time.Second
)

// Registry keeps at most one controlling worker per gateway
type Registry struct {
	log     zerolog.Logger
	storage domain.CacheStorage
	fetcher domain.Fetcher
	metrics *metrics.Metrics
	opts    Options
	enabled bool

	installs singleflight.Group
	now      func() time.Time

	mu         sync.RWMutex
	active     *Worker
	failedAt   time.Time
	installErr error
}

// NewRegistry creates a registry. When enabled is false (non-production) Register is a no-op.
func NewRegistry(log zerolog.Logger, storage domain.CacheStorage, fetcher domain.Fetcher, m *metrics.Metrics, opts Options, enabled bool) *Registry {
	return &Registry{
		log:     log.With().Str("module", "registry").Logger(),
		storage: storage,
		fetcher: fetcher,
		metrics: m,
		opts:    opts,
		enabled: enabled,
		now:     time.Now,
	}
}

func (r *Registry) Enabled() bool {
	return r.enabled && r.storage != nil && r.fetcher != nil
}

// Register installs and activates the configured version. Calling it again while that
// version controls the site returns the same worker. Concurrent callers share one
// install, and Active stays readable while it runs.
func (r *Registry) Register(ctx context.Context) (*Worker, error) {
	if !r.Enabled() {
		r.log.Debug().Msg("registration disabled")
		return nil, nil
	}

	if w := r.current(); w != nil {
		return w, nil
	}
	if err := r.recentFailure(); err != nil {
		return nil, err
	}

	v, err, _ := r.installs.Do(r.opts.Version, func() (any, error) {
		if w := r.current(); w != nil {
			return w, nil
		}

		// the install is shared, so no single caller's cancellation may abort it
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), installTimeout)
		defer cancel()

		w, err := r.install(ctx)
		r.mu.Lock()
		defer r.mu.Unlock()

		if err != nil {
			r.failedAt = r.now()
			r.installErr = err
			return nil, err
		}

		if r.active != nil {
			r.active.Retire()
		}
		r.active = w
		r.installErr = nil

		r.log.Info().Str("version", w.Version()).Msg("worker registered")
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Worker), nil
}

func (r *Registry) install(ctx context.Context) (*Worker, error) {
	w, err := New(r.log, r.storage, r.fetcher, r.metrics, r.opts)
	if err != nil {
		return nil, err
	}

	if err := w.Install(ctx); err != nil {
		return nil, errors.Wrapf(err, "could not register worker %s", r.opts.Version)
	}

	if _, err := w.Activate(ctx); err != nil {
		w.Retire()
		return nil, errors.Wrapf(err, "could not activate worker %s", r.opts.Version)
	}

	return w, nil
}

// current returns the active worker when it runs the configured version
func (r *Registry) current() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active != nil && r.active.Version() == r.opts.Version && r.active.State() == StateActive {
		return r.active
	}
	return nil
}

func (r *Registry) recentFailure() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.installErr != nil && r.now().Sub(r.failedAt) < installBackoff {
		return r.installErr
	}
	return nil
}

// Active returns the controlling worker, or nil
func (r *Registry) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Unregister drops the controlling worker. Its caches are left in place.
func (r *Registry) Unregister() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return false
	}

	r.active.Retire()
	r.active = nil
	r.log.Info().Msg("worker unregistered")
	return true
}

// ClearAll deletes every cache in storage and returns the deleted names
func (r *Registry) ClearAll(ctx context.Context) ([]string, error) {
	if r.storage == nil {
		return nil, nil
	}

	names, err := r.storage.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not list caches")
	}

	var deleted []string
	for _, name := range names {
		ok, err := r.storage.Delete(ctx, name)
		if err != nil {
			return deleted, errors.Wrapf(err, "could not delete cache %s", name)
		}
		if ok {
			deleted = append(deleted, name)
		}
	}

	r.log.Info().Int("count", len(deleted)).Msg("cleared caches")
	return deleted, nil
}

// Handle routes a request through the controlling worker, or straight to the network
// when no worker is active
func (r *Registry) Handle(ctx context.Context, req *domain.Request) (*domain.Response, Route, error) {
	if w := r.Active(); w != nil {
		resp, route, err := w.Handle(ctx, req)
		if !errors.Is(err, ErrNotActive) {
			return resp, route, err
		}
	}

	resp, err := r.fetcher.Fetch(ctx, req)
	return resp, Route{Strategy: StrategyPassthrough}, err
}
