package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"md2pdf/internal/config"
	"md2pdf/internal/domain"
	"md2pdf/internal/infra/chrome"
)

type stubConverter struct{}

func (stubConverter) Convert(ctx context.Context, req domain.ConversionRequest) (domain.PDFOutput, error) {
	return domain.PDFOutput{Data: []byte("%PDF-1.4"), Filename: req.Filename}, nil
}

type stubEngine struct{ ready bool }

func (s stubEngine) Stats() chrome.Stats { return chrome.Stats{Running: s.ready} }
func (s stubEngine) Ready() bool         { return s.ready }

func minimalConfig() config.Config {
	cfg := config.Defaults()
	cfg.Limits.MaxBodyBytes = 1024
	return cfg
}

func TestNew_RoutesAndJSON404(t *testing.T) {
	app := New(Deps{Config: minimalConfig(), Converter: stubConverter{}, Engine: stubEngine{ready: true}})

	for _, path := range []string{"/health", "/engine/stats", "/livez", "/readyz"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp404, err := app.Test(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)
	body, _ := io.ReadAll(resp404.Body)
	assert.JSONEq(t, `{"error":"Not Found"}`, string(body))
}

func TestNew_ConvertRoute(t *testing.T) {
	app := New(Deps{Config: minimalConfig(), Converter: stubConverter{}, Engine: stubEngine{}})

	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{"markdown":"# x","filename":"out"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="out.pdf"`, resp.Header.Get(fiber.HeaderContentDisposition))
}

func TestNew_BodyLimit(t *testing.T) {
	app := New(Deps{Config: minimalConfig(), Converter: stubConverter{}})

	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(strings.Repeat("x", 4096)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMETextPlain)
	resp, err := app.Test(req)
	if err == nil {
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	}
}

func TestNew_ServesPublicDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<form></form>"), 0o644))
	cfg := minimalConfig()
	cfg.Server.PublicDir = dir

	app := New(Deps{Config: cfg, Converter: stubConverter{}})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "<form>")
}

type recordingConverter struct {
	last domain.ConversionRequest
}

func (r *recordingConverter) Convert(ctx context.Context, req domain.ConversionRequest) (domain.PDFOutput, error) {
	r.last = req
	return domain.PDFOutput{Data: []byte("%PDF-1.4"), Filename: req.Filename}, nil
}

func TestNew_MultipartKeepsWireOrder(t *testing.T) {
	conv := &recordingConverter{}
	app := New(Deps{Config: config.Defaults(), Converter: conv})

	for i := 0; i < 40; i++ {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("text", "from text"))
		require.NoError(t, w.WriteField("markdown", "from markdown"))
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/convert", &buf)
		req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "from text", conv.last.Markdown, "run %d", i)
	}
}
