package seo

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/varoOP/clubgate/internal/apiclient"
	"github.com/varoOP/clubgate/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Source provides page-level and site-level settings
type Source interface {
	PageSEO(ctx context.Context, page string) (domain.SEOMeta, error)
	SiteSEO(ctx context.Context) (domain.SEOMeta, error)
}

type Service interface {
	Resolve(ctx context.Context, page string, explicit domain.SEOMeta) domain.SEOMeta
}

type service struct {
	log    zerolog.Logger
	source Source
}

func NewService(log zerolog.Logger, source Source) Service {
	return &service{
		log:    log.With().Str("module", "seo").Logger(),
		source: source,
	}
}

// Resolve merges explicit values over the page settings over the site defaults.
// When either lookup fails only the explicit values are used.
func (s *service) Resolve(ctx context.Context, page string, explicit domain.SEOMeta) domain.SEOMeta {
	if s.source == nil {
		return explicit
	}

	var pageMeta, siteMeta domain.SEOMeta

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pageMeta, err = s.source.PageSEO(gctx, page)
		return err
	})
	g.Go(func() error {
		var err error
		siteMeta, err = s.source.SiteSEO(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.log.Debug().Err(err).Str("page", page).Msg("seo settings unavailable")
		return explicit
	}

	return explicit.Merge(pageMeta).Merge(siteMeta)
}

// APISource reads SEO settings from the club API
type APISource struct {
	client *apiclient.Client
}

func NewAPISource(client *apiclient.Client) *APISource {
	return &APISource{client: client}
}

func (a *APISource) PageSEO(ctx context.Context, page string) (domain.SEOMeta, error) {
	env, err := a.client.Pages.Get(ctx, page, nil)
	if err != nil {
		return domain.SEOMeta{}, err
	}
	return metaFrom(env.Data().Get("seo")), nil
}

func (a *APISource) SiteSEO(ctx context.Context) (domain.SEOMeta, error) {
	env, err := a.client.Settings.Get(ctx, nil)
	if err != nil {
		return domain.SEOMeta{}, err
	}

	data := env.Data()
	meta := metaFrom(data.Get("seo"))
	if meta.Title == "" {
		meta.Title = data.Get("siteName").String()
	}
	return meta, nil
}

func metaFrom(v gjson.Result) domain.SEOMeta {
	return domain.SEOMeta{
		Title:       v.Get("title").String(),
		Description: v.Get("description").String(),
		Keywords:    v.Get("keywords").String(),
		OGImage:     v.Get("ogImage").String(),
	}
}
