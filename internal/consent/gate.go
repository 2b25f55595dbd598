// Package consent decides whether a visitor gets the offline worker and a cache warm.
package consent

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/metrics"
	"github.com/varoOP/clubgate/internal/warmer"
	"github.com/varoOP/clubgate/internal/worker"
	"golang.org/x/sync/singleflight"
)

const DefaultAdminPrefix = "/admin"

type Registrar interface {
	Register(ctx context.Context) (*worker.Worker, error)
}

type Warmer interface {
	Warm(ctx context.Context) warmer.Summary
	WarmedWithin(ctx context.Context, d time.Duration) bool
}

// Decision is what the page should do for the current visit. The busy state
// shown while accepting lasts as long as the accept request itself.
type Decision struct {
	State      domain.ConsentState `json:"state"`
	ShowBanner bool                `json:"showBanner"`
	Registered bool                `json:"registered"`
}

type Options struct {
	AdminPrefix string
	// WarmInterval is how long a finished warm satisfies later accepts; 0 always warms
	WarmInterval time.Duration
}

type Gate struct {
	log          zerolog.Logger
	store        Store
	registrar    Registrar
	warmer       Warmer
	metrics      *metrics.Metrics
	adminPrefix  string
	warmInterval time.Duration

	warms singleflight.Group
}

func NewGate(log zerolog.Logger, store Store, registrar Registrar, w Warmer, m *metrics.Metrics, opts Options) *Gate {
	if opts.AdminPrefix == "" {
		opts.AdminPrefix = DefaultAdminPrefix
	}
	return &Gate{
		log:          log.With().Str("module", "consent").Logger(),
		store:        store,
		registrar:    registrar,
		warmer:       w,
		metrics:      m,
		adminPrefix:  strings.TrimRight(opts.AdminPrefix, "/"),
		warmInterval: opts.WarmInterval,
	}
}

func (g *Gate) isAdmin(path string) bool {
	return path == g.adminPrefix || strings.HasPrefix(path, g.adminPrefix+"/")
}

// Evaluate reads the stored decision for a page load on path
func (g *Gate) Evaluate(ctx context.Context, r *http.Request, path string) Decision {
	d := Decision{State: g.store.Get(r)}

	switch d.State {
	case domain.ConsentAccepted:
		d.Registered = g.register(ctx)
	case domain.ConsentIgnored:
		// hidden until the cookie expires
	default:
		d.ShowBanner = !g.isAdmin(path)
	}

	return d
}

// Accept records acceptance, registers the worker and runs one cache warm.
// Accepts arriving while a warm runs share it, and a warm younger than the
// warm interval answers without fetching again.
func (g *Gate) Accept(ctx context.Context, w http.ResponseWriter) (Decision, warmer.Summary) {
	g.store.Set(w, domain.ConsentAccepted, domain.ConsentAcceptedTTL)
	g.count(domain.ConsentAccepted)

	d := Decision{State: domain.ConsentAccepted}
	d.Registered = g.register(ctx)

	return d, g.warm(ctx)
}

func (g *Gate) warm(ctx context.Context) warmer.Summary {
	if g.warmer == nil {
		return warmer.Summary{}
	}

	v, _, _ := g.warms.Do("prefetch", func() (any, error) {
		// shared by every waiting accept, so one visitor leaving must not cancel it
		ctx := context.WithoutCancel(ctx)

		if g.warmer.WarmedWithin(ctx, g.warmInterval) {
			g.log.Debug().Dur("interval", g.warmInterval).Msg("prefetch cache is fresh, skipping warm")
			return warmer.Summary{Fresh: true}, nil
		}
		return g.warmer.Warm(ctx), nil
	})
	return v.(warmer.Summary)
}

// Ignore records the refusal; the banner returns once the cookie expires
func (g *Gate) Ignore(w http.ResponseWriter) Decision {
	g.store.Set(w, domain.ConsentIgnored, domain.ConsentIgnoredTTL)
	g.count(domain.ConsentIgnored)
	return Decision{State: domain.ConsentIgnored}
}

func (g *Gate) register(ctx context.Context) bool {
	if g.registrar == nil {
		return false
	}

	wk, err := g.registrar.Register(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("worker registration failed")
		return false
	}
	return wk != nil
}

func (g *Gate) count(state domain.ConsentState) {
	if g.metrics != nil {
		g.metrics.ConsentChoices.WithLabelValues(string(state)).Inc()
	}
}
