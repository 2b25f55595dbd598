package domain

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type RequestMode string

const (
	ModeNavigate   RequestMode = "navigate"
	ModeSameOrigin RequestMode = "same-origin"
	ModeCORS       RequestMode = "cors"
	ModeNoCORS     RequestMode = "no-cors"
)

// Destination is what the requester intends to do with the response (Sec-Fetch-Dest)
type Destination string

const (
	DestinationEmpty    Destination = ""
	DestinationDocument Destination = "document"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
)

// Request is an intercepted fetch
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Mode        RequestMode
	Destination Destination
	// OmitCredentials drops Authorization and Cookie headers before the request leaves
	OmitCredentials bool
	Body            []byte
}

// NewRequest builds a GET request for rawURL
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method: http.MethodGet,
		URL:    u,
		Header: http.Header{},
		Mode:   ModeCORS,
	}, nil
}

// Key is the cache key for the request
func (r *Request) Key() string {
	return r.URL.String()
}

func (r *Request) IsGet() bool {
	return r.Method == "" || strings.EqualFold(r.Method, http.MethodGet)
}

// Fetcher performs network requests
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}
