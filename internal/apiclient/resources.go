package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// Resource is the CRUD method group shared by most collections
type Resource struct {
	c    *Client
	path string
}

func (r *Resource) Path() string {
	return r.path
}

func (r *Resource) List(ctx context.Context, query url.Values) (*Envelope, error) {
	return r.c.Do(ctx, http.MethodGet, r.path, query, nil)
}

func (r *Resource) Get(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return r.c.Do(ctx, http.MethodGet, r.path+"/"+url.PathEscape(id), query, nil)
}

func (r *Resource) Create(ctx context.Context, body any) (*Envelope, error) {
	return r.c.Do(ctx, http.MethodPost, r.path, nil, body)
}

func (r *Resource) Update(ctx context.Context, id string, body any) (*Envelope, error) {
	return r.c.Do(ctx, http.MethodPut, r.path+"/"+url.PathEscape(id), nil, body)
}

func (r *Resource) Delete(ctx context.Context, id string) (*Envelope, error) {
	return r.c.Do(ctx, http.MethodDelete, r.path+"/"+url.PathEscape(id), nil, nil)
}

type Pages struct {
	c *Client
}

// Get fetches a content page by slug, e.g. "home"
func (p *Pages) Get(ctx context.Context, slug string, query url.Values) (*Envelope, error) {
	return p.c.Do(ctx, http.MethodGet, "/api/pages/"+url.PathEscape(slug), query, nil)
}

func (p *Pages) Update(ctx context.Context, slug string, body any) (*Envelope, error) {
	return p.c.Do(ctx, http.MethodPut, "/api/pages/"+url.PathEscape(slug), nil, body)
}

type Settings struct {
	c *Client
}

func (s *Settings) Get(ctx context.Context, query url.Values) (*Envelope, error) {
	return s.c.Do(ctx, http.MethodGet, "/api/settings", query, nil)
}

func (s *Settings) Update(ctx context.Context, body any) (*Envelope, error) {
	return s.c.Do(ctx, http.MethodPut, "/api/settings", nil, body)
}

type Public struct {
	c *Client
}

func (p *Public) Stats(ctx context.Context, query url.Values) (*Envelope, error) {
	return p.c.Do(ctx, http.MethodGet, "/api/public/stats", query, nil)
}
