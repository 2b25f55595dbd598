package warmer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWalker_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "image-like keys",
			body: `{"title":"Club","logo":"/uploads/logo.png","coverPhoto":"/uploads/c.jpg","description":"no"}`,
			want: []string{"/uploads/logo.png", "/uploads/c.jpg"},
		},
		{
			name: "nested envelope",
			body: `{"success":true,"data":[{"id":1,"imageUrl":"/api/upload/file/a"},{"id":2,"thumbnail":"b.webp"}]}`,
			want: []string{"/api/upload/file/a", "b.webp"},
		},
		{
			name: "strings inside arrays",
			body: `{"images":["one.png","two.png"],"tags":["news","club"]}`,
			want: []string{"one.png", "two.png", "news", "club"},
		},
		{
			name: "non-string values under image keys",
			body: `{"image":null,"logo":{"url":"/uploads/x.svg"},"photoCount":3}`,
			want: []string{"/uploads/x.svg"},
		},
		{
			name: "empty object",
			body: `{}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := JSONWalker{}.Extract([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONWalker_Malformed(t *testing.T) {
	t.Parallel()

	_, err := JSONWalker{}.Extract([]byte(`{"data": [`))
	assert.ErrorIs(t, err, ErrMalformedJSON)
}
