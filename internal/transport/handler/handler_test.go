package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/webpbucket/internal/entities"
	"github.com/trunov/webpbucket/internal/pipeline"
	"github.com/trunov/webpbucket/internal/transport/handler"
	"github.com/trunov/webpbucket/internal/transport/router"
)

type emptyBucket struct{}

func (emptyBucket) List(context.Context) iter.Seq2[string, error] {
	return func(func(string, error) bool) {}
}

func (emptyBucket) Download(context.Context, string) ([]byte, error) { return nil, nil }

func (emptyBucket) Upload(context.Context, string, string, []byte) error { return nil }

type noopConverter struct{}

func (noopConverter) Decode([]byte, entities.Task) (image.Image, error) { return nil, nil }

func (noopConverter) Encode(image.Image, entities.Task) ([]byte, error) { return nil, nil }

type mockUseCase struct {
	convertImageFunc func(ctx context.Context, key string) error
	listImagesFunc   func(ctx context.Context) ([]string, error)
	status           *pipeline.Summary
	lastKey          string
	started          int
}

func (m *mockUseCase) ConvertImage(ctx context.Context, key string) error {
	m.lastKey = key
	if m.convertImageFunc != nil {
		return m.convertImageFunc(ctx, key)
	}
	return nil
}

func (m *mockUseCase) ConvertAllImages(ctx context.Context) *pipeline.BatchRun {
	m.started++
	return pipeline.New(emptyBucket{}, noopConverter{}, pipeline.Options{}).ConvertAll(ctx)
}

func (m *mockUseCase) ListImages(ctx context.Context) ([]string, error) {
	if m.listImagesFunc != nil {
		return m.listImagesFunc(ctx)
	}
	return []string{}, nil
}

func (m *mockUseCase) BatchStatus(context.Context) (pipeline.Summary, bool) {
	if m.status == nil {
		return pipeline.Summary{}, false
	}
	return *m.status, true
}

func serve(t *testing.T, uc handler.UseCase, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := router.NewRouter(handler.New(uc), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestConvertImage_Success(t *testing.T) {
	uc := &mockUseCase{}

	rec := serve(t, uc, http.MethodPost, "/images/convert?key=img%2Fx.png")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Image converted and saved to webp folder successfully", rec.Body.String())
	assert.Equal(t, "img/x.png", uc.lastKey)
}

func TestConvertImage_MissingKey(t *testing.T) {
	uc := &mockUseCase{}

	rec := serve(t, uc, http.MethodPost, "/images/convert")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "is required", body["Key"])
	assert.Empty(t, uc.lastKey)
}

func TestConvertImage_TooLongKey(t *testing.T) {
	rec := serve(t, &mockUseCase{}, http.MethodPost, "/images/convert?key="+strings.Repeat("a", 1025)+".png")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertImage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported", fmt.Errorf("%w: %q", pipeline.ErrUnsupportedKey, "a.txt"), http.StatusBadRequest, "unsupported_key"},
		{"not found", &pipeline.ConversionError{Stage: pipeline.StageDownload, Key: "a.png", Err: &types.NoSuchKey{}}, http.StatusNotFound, "not_found"},
		{"download", &pipeline.ConversionError{Stage: pipeline.StageDownload, Key: "a.png", Err: errors.New("reset")}, http.StatusBadGateway, "download_failed"},
		{"decode", &pipeline.ConversionError{Stage: pipeline.StageDecode, Key: "a.png", Err: errors.New("bad")}, http.StatusUnprocessableEntity, "decode_failed"},
		{"encode", &pipeline.ConversionError{Stage: pipeline.StageEncode, Key: "a.png", Err: errors.New("bad")}, http.StatusInternalServerError, "encode_failed"},
		{"upload", &pipeline.ConversionError{Stage: pipeline.StageUpload, Key: "a.png", Err: errors.New("403")}, http.StatusBadGateway, "upload_failed"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &mockUseCase{convertImageFunc: func(context.Context, string) error { return tt.err }}

			rec := serve(t, uc, http.MethodPost, "/images/convert?key=a.png")

			assert.Equal(t, tt.status, rec.Code)
			var body handler.APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestConvertAllImages(t *testing.T) {
	uc := &mockUseCase{}

	rec := serve(t, uc, http.MethodPost, "/images/convert-all")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Started processing all images to webp", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Batch-ID"))
	assert.Equal(t, 1, uc.started)
}

func TestListImages(t *testing.T) {
	uc := &mockUseCase{listImagesFunc: func(context.Context) ([]string, error) {
		return []string{"docs/report.pdf", "img/x.png", "img/notes.txt"}, nil
	}}

	rec := serve(t, uc, http.MethodGet, "/images/list")

	assert.Equal(t, http.StatusOK, rec.Code)
	var keys []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	assert.Equal(t, []string{"docs/report.pdf", "img/x.png", "img/notes.txt"}, keys)
}

func TestListImages_ListingError(t *testing.T) {
	uc := &mockUseCase{listImagesFunc: func(context.Context) ([]string, error) {
		return nil, &pipeline.ListingError{Err: errors.New("throttled")}
	}}

	rec := serve(t, uc, http.MethodGet, "/images/list")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBatchStatus(t *testing.T) {
	rec := serve(t, &mockUseCase{}, http.MethodGet, "/images/convert-all/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	uc := &mockUseCase{status: &pipeline.Summary{ID: "run-1", Running: true, Scheduled: 3, Processed: 1}}
	rec = serve(t, uc, http.MethodGet, "/images/convert-all/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.True(t, got.Running)
	assert.Equal(t, int64(1), got.Processed)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(t, &mockUseCase{}, http.MethodGet, "/images/convert?key=a.png")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	rec := serve(t, &mockUseCase{}, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz_Dependencies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"redis up", nil, http.StatusOK},
		{"redis down", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.New(&mockUseCase{}).WithDependency("redis", pinger{err: tt.err})
			rec := httptest.NewRecorder()
			router.NewRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.want, rec.Code)
			if tt.err != nil {
				var body handler.APIError
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, "unavailable", body.Code)
				assert.Contains(t, body.Error, "redis")
			}
		})
	}
}
