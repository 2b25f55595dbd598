package warmer

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrMalformedJSON is returned by extractors for bodies that are not valid JSON
var ErrMalformedJSON = errors.New("malformed JSON")

// ImageExtractor finds image candidates in an endpoint response body
type ImageExtractor interface {
	Extract(body []byte) ([]string, error)
}

var imageKeyRe = regexp.MustCompile(`(?i)image|photo|logo|favicon|thumbnail|cover|url`)

// JSONWalker walks any JSON document. It collects strings stored under image-like
// keys and every string element of an array.
type JSONWalker struct{}

func (JSONWalker) Extract(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedJSON
	}

	var out []string
	walk(gjson.ParseBytes(body), &out)
	return out, nil
}

func walk(v gjson.Result, out *[]string) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				if imageKeyRe.MatchString(key.String()) {
					*out = append(*out, value.String())
				}
				return true
			}
			walk(value, out)
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, value gjson.Result) bool {
			if value.Type == gjson.String {
				*out = append(*out, value.String())
				return true
			}
			walk(value, out)
			return true
		})
	}
}
