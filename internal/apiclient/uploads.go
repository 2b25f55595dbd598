package apiclient

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"
)

// File is one part of a multipart upload
type File struct {
	Name   string
	Reader io.Reader
}

type Uploads struct {
	c *Client
}

// Image uploads a single image as the "image" form field
func (u *Uploads) Image(ctx context.Context, f File) (*Envelope, error) {
	return u.post(ctx, "/api/upload/image", "image", []File{f})
}

// Images uploads several images as repeated "images" form fields
func (u *Uploads) Images(ctx context.Context, files []File) (*Envelope, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}
	return u.post(ctx, "/api/upload/images", "images", files)
}

func (u *Uploads) post(ctx context.Context, path, field string, files []File) (*Envelope, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range files {
		part, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, errors.Wrap(err, "could not create form file")
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, errors.Wrapf(err, "could not read %s", f.Name)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "could not finish multipart body")
	}

	return u.c.send(ctx, http.MethodPost, path, nil, &buf, mw.FormDataContentType())
}
