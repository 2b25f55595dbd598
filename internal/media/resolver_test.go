package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		apiOrigin  string
		pageOrigin string
		input      string
		want       string
	}{
		{name: "empty input", apiOrigin: "https://api.example.com", input: "", want: ""},
		{name: "data url untouched", apiOrigin: "https://api.example.com", input: "data:image/png;base64,AAAA", want: "data:image/png;base64,AAAA"},
		{name: "blob url untouched", apiOrigin: "https://api.example.com", input: "blob:https://site/123", want: "blob:https://site/123"},
		{name: "relative without origin", input: "/api/upload/file/a.jpg", want: "/api/upload/file/a.jpg"},
		{name: "upload path prefixed", apiOrigin: "https://api.example.com", input: "/api/upload/file/abc.jpg", want: "https://api.example.com/api/upload/file/abc.jpg"},
		{name: "uploads dir prefixed", apiOrigin: "https://api.example.com/", input: "/uploads/x.png", want: "https://api.example.com/uploads/x.png"},
		{name: "local static asset", apiOrigin: "https://api.example.com", input: "/logo.png", want: "/logo.png"},
		{name: "bare relative gets separator", apiOrigin: "https://api.example.com", input: "uploads/x.png", want: "https://api.example.com/uploads/x.png"},
		{name: "third party absolute", apiOrigin: "https://api.example.com", input: "https://cdn.example.com/a.png", want: "https://cdn.example.com/a.png"},
		{name: "localhost upload rewritten", apiOrigin: "https://api.example.com", input: "http://localhost:5000/api/upload/file/abc.jpg", want: "https://api.example.com/api/upload/file/abc.jpg"},
		{name: "loopback upload keeps query", apiOrigin: "https://api.example.com", input: "http://127.0.0.1:5000/uploads/a.jpg?w=200", want: "https://api.example.com/uploads/a.jpg?w=200"},
		{name: "page origin upload rewritten", apiOrigin: "https://api.example.com", pageOrigin: "https://club.example.com", input: "https://club.example.com/api/upload/file/1.jpg", want: "https://api.example.com/api/upload/file/1.jpg"},
		{name: "page origin equals api origin", apiOrigin: "https://club.example.com", pageOrigin: "https://club.example.com", input: "https://club.example.com/api/upload/file/1.jpg", want: "https://club.example.com/api/upload/file/1.jpg"},
		{name: "foreign upload untouched", apiOrigin: "https://api.example.com", input: "https://other.example.com/uploads/a.jpg", want: "https://other.example.com/uploads/a.jpg"},
		{name: "path only origin spliced", apiOrigin: "/backend", input: "http://localhost:5000/api/upload/file/a.jpg?v=2", want: "/backend/api/upload/file/a.jpg?v=2"},
		{name: "path only origin relative", apiOrigin: "/backend", input: "/api/upload/file/a.jpg", want: "/backend/api/upload/file/a.jpg"},
		{name: "malformed absolute", apiOrigin: "https://api.example.com", input: "http://local host:%zz/uploads/a.jpg", want: "http://local host:%zz/uploads/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewResolver(tt.apiOrigin, tt.pageOrigin)
			assert.Equal(t, tt.want, r.Resolve(tt.input))
		})
	}
}

func TestResolver_IdempotentForThirdPartyURLs(t *testing.T) {
	t.Parallel()

	r := NewResolver("https://api.example.com", "https://club.example.com")
	inputs := []string{
		"https://cdn.example.com/a.png",
		"https://fonts.gstatic.com/s/inter/v1.woff2",
		"http://images.example.org/photo.jpg?size=large",
	}
	for _, in := range inputs {
		once := r.Resolve(in)
		assert.Equal(t, in, once)
		assert.Equal(t, once, r.Resolve(once))
	}
}

func TestLooksLikeImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"https://api.example.com/api/upload/file/abc", true},
		{"/uploads/team.JPG", true},
		{"https://cdn.example.com/a.webp?x=1", true},
		{"/favicon.ico", true},
		{"https://api.example.com/api/events", false},
		{"/index.html", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeImage(tt.in), "LooksLikeImage(%q)", tt.in)
	}
}
