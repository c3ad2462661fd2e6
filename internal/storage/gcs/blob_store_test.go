package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

type recorder struct {
	bucket, object, contentType string
	writer                      *fakeWriter
}

func (r *recorder) newWriter(_ context.Context, bucket, object, contentType string) io.WriteCloser {
	r.bucket, r.object, r.contentType = bucket, object, contentType
	return r.writer
}

func TestPutObjectWritesUnderPrefix(t *testing.T) {
	t.Parallel()

	rec := &recorder{writer: &fakeWriter{}}
	store, err := newBlobStore(Config{Bucket: "harvest", Prefix: "/booth/"}, rec.newWriter)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "booth_data_マダミス.json", "application/json", strings.NewReader("[]"))
	require.NoError(t, err)
	require.Equal(t, "gs://harvest/booth/booth_data_マダミス.json", uri)
	require.Equal(t, "harvest", rec.bucket)
	require.Equal(t, "booth/booth_data_マダミス.json", rec.object)
	require.Equal(t, "application/json", rec.contentType)
	require.Equal(t, "[]", rec.writer.String())
	require.True(t, rec.writer.closed)
}

func TestPutObjectCloseError(t *testing.T) {
	t.Parallel()

	rec := &recorder{writer: &fakeWriter{closeErr: errors.New("quota")}}
	store, err := newBlobStore(Config{Bucket: "harvest"}, rec.newWriter)
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "a.json", "", strings.NewReader("[]"))
	require.ErrorContains(t, err, "close writer")
	require.Equal(t, "a.json", rec.object)
}

func TestPutObjectValidation(t *testing.T) {
	t.Parallel()

	_, err := newBlobStore(Config{}, nil)
	require.Error(t, err)

	_, err = New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	store, err := newBlobStore(Config{Bucket: "b"}, (&recorder{writer: &fakeWriter{}}).newWriter)
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader(""))
	require.Error(t, err)
}
