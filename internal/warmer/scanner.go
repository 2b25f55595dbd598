package warmer

import (
	"context"
	"time"

	"github.com/gocolly/colly"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DocumentScanner collects image references from an HTML page
type DocumentScanner interface {
	Scan(ctx context.Context, pageURL string) ([]string, error)
}

// CollyScanner visits a single document and returns the raw src/href/content
// values of images, icons and og:image tags
type CollyScanner struct {
	log     zerolog.Logger
	timeout time.Duration
}

func NewCollyScanner(log zerolog.Logger) *CollyScanner {
	return &CollyScanner{
		log:     log.With().Str("module", "scanner").Logger(),
		timeout: 15 * time.Second,
	}
}

func (s *CollyScanner) Scan(ctx context.Context, pageURL string) ([]string, error) {
	c := colly.NewCollector(
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(s.timeout)

	var found []string
	collect := func(v string) {
		if v != "" {
			found = append(found, v)
		}
	}

	c.OnHTML("img[src]", func(e *colly.HTMLElement) {
		collect(e.Attr("src"))
	})
	c.OnHTML("link[rel*=icon][href]", func(e *colly.HTMLElement) {
		collect(e.Attr("href"))
	})
	c.OnHTML(`meta[property="og:image"]`, func(e *colly.HTMLElement) {
		collect(e.Attr("content"))
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = errors.Wrapf(err, "scan %s returned %d", pageURL, r.StatusCode)
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.Visit(pageURL); err != nil {
		return nil, errors.Wrapf(err, "could not scan %s", pageURL)
	}
	c.Wait()

	if visitErr != nil {
		return nil, visitErr
	}

	s.log.Debug().Str("url", pageURL).Int("found", len(found)).Msg("scanned document")
	return found, nil
}
