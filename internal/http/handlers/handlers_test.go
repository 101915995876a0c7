package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"md2pdf/internal/domain"
	"md2pdf/internal/infra/chrome"
)

type fakeConverter struct {
	calls int
	last  domain.ConversionRequest
	err   error
}

func (f *fakeConverter) Convert(ctx context.Context, req domain.ConversionRequest) (domain.PDFOutput, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return domain.PDFOutput{}, f.err
	}
	return domain.PDFOutput{Data: []byte("%PDF-1.4 test"), Filename: req.Filename}, nil
}

func newTestApp(conv Converter, maxFile int64) *fiber.App {
	app := fiber.New(fiber.Config{DisablePreParseMultipartForm: true})
	app.Post("/convert", NewConvertHandler(maxFile, conv).Handle)
	return app
}

type field struct {
	name, value, filename string
}

func multipartBody(t *testing.T, fields ...field) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.filename != "" {
			fw, err := w.CreateFormFile(f.name, f.filename)
			require.NoError(t, err)
			_, err = fw.Write([]byte(f.value))
			require.NoError(t, err)
			continue
		}
		require.NoError(t, w.WriteField(f.name, f.value))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, app *fiber.App, target, ctype string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, body)
	if ctype != "" {
		req.Header.Set(fiber.HeaderContentType, ctype)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestConvert_EmptyInputIsRejectedOnEveryPath(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	mpBody, mpType := multipartBody(t, field{name: "text", value: "   "})
	cases := []struct {
		name  string
		ctype string
		body  io.Reader
	}{
		{"multipart", mpType, mpBody},
		{"json", fiber.MIMEApplicationJSON, strings.NewReader(`{"markdown":"  \n"}`)},
		{"plain", fiber.MIMETextPlain, strings.NewReader("")},
		{"no content type", "", strings.NewReader("")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, data := do(t, app, "/convert", tc.ctype, tc.body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, invalidInputMessage, body["error"])
		})
	}
	assert.Zero(t, conv.calls, "no conversion may start for empty input")
}

func TestConvert_MultipartFileUpload(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	body, ctype := multipartBody(t, field{name: "file", value: "# Hi", filename: "notes.md"})
	resp, data := do(t, app, "/convert", ctype, body)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, `attachment; filename="notes.pdf"`, resp.Header.Get(fiber.HeaderContentDisposition))
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Equal(t, "# Hi", conv.last.Markdown)
}

func TestConvert_MultipartPrecedence(t *testing.T) {
	tests := []struct {
		name         string
		fields       []field
		wantMarkdown string
		wantFilename string
	}{
		{
			name:         "file after text wins",
			fields:       []field{{name: "text", value: "from text"}, {name: "file", value: "from file", filename: "a.md"}},
			wantMarkdown: "from file",
			wantFilename: "a",
		},
		{
			name:         "file before text wins",
			fields:       []field{{name: "file", value: "from file", filename: "b.markdown"}, {name: "text", value: "from text"}},
			wantMarkdown: "from file",
			wantFilename: "b",
		},
		{
			name:         "first text field wins",
			fields:       []field{{name: "markdown", value: "first"}, {name: "text", value: "second"}},
			wantMarkdown: "first",
		},
		{
			name:         "explicit filename beats upload name",
			fields:       []field{{name: "filename", value: "report"}, {name: "file", value: "x", filename: "upload.md"}},
			wantMarkdown: "x",
			wantFilename: "report",
		},
		{
			name:         "only last extension is stripped",
			fields:       []field{{name: "file", value: "x", filename: "archive.v2.md"}},
			wantMarkdown: "x",
			wantFilename: "archive.v2",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conv := &fakeConverter{}
			app := newTestApp(conv, 1<<20)
			body, ctype := multipartBody(t, tc.fields...)
			resp, _ := do(t, app, "/convert", ctype, body)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, tc.wantMarkdown, conv.last.Markdown)
			assert.Equal(t, tc.wantFilename, conv.last.Filename)
		})
	}
}

func TestConvert_MultipartOverridesAndQueryDefaults(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	body, ctype := multipartBody(t,
		field{name: "text", value: "# x"},
		field{name: "format", value: "Letter"},
		field{name: "title", value: " "},
	)
	resp, _ := do(t, app, "/convert?format=A3&title=From+Query", ctype, body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Letter", conv.last.Format)
	assert.Equal(t, "From Query", conv.last.Title, "blank fields keep the query default")
}

func TestConvert_UploadTooLarge(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 8)

	body, ctype := multipartBody(t, field{name: "file", value: "0123456789", filename: "big.md"})
	resp, _ := do(t, app, "/convert", ctype, body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, conv.calls)
}

func TestConvert_JSON(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   domain.ConversionRequest
	}{
		{
			name:   "markdown with overrides",
			body:   `{"markdown":"# A","filename":"out","format":"A5","title":"T"}`,
			status: fiber.StatusOK,
			want:   domain.ConversionRequest{Markdown: "# A", Filename: "out", Format: "A5", Title: "T"},
		},
		{
			name:   "text fallback",
			body:   `{"text":"# B"}`,
			status: fiber.StatusOK,
			want:   domain.ConversionRequest{Markdown: "# B"},
		},
		{
			name:   "markdown preferred over text",
			body:   `{"markdown":"m","text":"t"}`,
			status: fiber.StatusOK,
			want:   domain.ConversionRequest{Markdown: "m"},
		},
		{
			name:   "non-string values ignored",
			body:   `{"markdown":42,"text":"ok","title":["x"]}`,
			status: fiber.StatusOK,
			want:   domain.ConversionRequest{Markdown: "ok"},
		},
		{name: "malformed", body: `{"markdown":`, status: fiber.StatusBadRequest},
		{name: "missing markdown", body: `{"title":"x"}`, status: fiber.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conv := &fakeConverter{}
			app := newTestApp(conv, 1<<20)
			resp, _ := do(t, app, "/convert", "application/json; charset=utf-8", strings.NewReader(tc.body))
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.status == fiber.StatusOK {
				assert.Equal(t, tc.want, conv.last)
			}
		})
	}
}

func TestConvert_PlainTextAndSniffedBodies(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	resp, _ := do(t, app, "/convert?title=Plain", fiber.MIMETextPlain, strings.NewReader("# Plain body"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "# Plain body", conv.last.Markdown)
	assert.Equal(t, "Plain", conv.last.Title)

	resp, _ = do(t, app, "/convert", "application/x-markdown", strings.NewReader("# Sniffed"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "# Sniffed", conv.last.Markdown)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	resp, _ = do(t, app, "/convert", "application/octet-stream", bytes.NewReader(png))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvert_DefaultFilename(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	resp, _ := do(t, app, "/convert", fiber.MIMEApplicationJSON, strings.NewReader(`{"markdown":"x","filename":"my file!@#"}`))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="my_file___.pdf"`, resp.Header.Get(fiber.HeaderContentDisposition))

	resp, _ = do(t, app, "/convert", fiber.MIMETextPlain, strings.NewReader("x"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="document.pdf"`, resp.Header.Get(fiber.HeaderContentDisposition))
}

func TestConvert_FailureBecomes500(t *testing.T) {
	conv := &fakeConverter{err: errors.Join(domain.ErrEngineUnavailable, errors.New("no chromium"))}
	app := newTestApp(conv, 1<<20)

	resp, data := do(t, app, "/convert", fiber.MIMETextPlain, strings.NewReader("# x"))
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "Conversion failed", body["error"])
	assert.Contains(t, body["details"], "no chromium")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"my file!@#", "my_file___"},
		{"report-2024_v1", "report-2024_v1"},
		{"", "document"},
		{"   ", "document"},
		{" padded ", "padded"},
		{"../etc/passwd", "___etc_passwd"},
		{"résumé", "r_sum_"},
	}
	for _, tc := range tests {
		got := SanitizeFilename(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		assert.Equal(t, got, SanitizeFilename(got), "sanitizing must be idempotent for %q", tc.in)
	}
}

type staticStats chrome.Stats

func (s staticStats) Stats() chrome.Stats { return chrome.Stats(s) }

func TestHealthAndEngineStats(t *testing.T) {
	app := fiber.New()
	app.Get("/health", Health)
	app.Get("/engine/stats", EngineStats(staticStats{Running: true, Launches: 1}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/engine/stats", nil))
	require.NoError(t, err)
	var st chrome.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.Launches)
}

func TestConvert_EmptyFileInputIsIgnored(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("text", "# pasted"))
	_, err := w.CreateFormFile("file", "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, _ := do(t, app, "/convert", w.FormDataContentType(), &buf)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "# pasted", conv.last.Markdown)
}

func TestConvert_FileFieldWithoutFilenameIsIgnored(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	body, ctype := multipartBody(t,
		field{name: "text", value: "# pasted"},
		field{name: "file", value: "# not an upload"},
	)
	resp, _ := do(t, app, "/convert", ctype, body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "# pasted", conv.last.Markdown)
	assert.Empty(t, conv.last.Filename)
}

func TestConvert_MultipartFieldOrderIsStable(t *testing.T) {
	conv := &fakeConverter{}
	app := newTestApp(conv, 1<<20)

	for i := 0; i < 30; i++ {
		body, ctype := multipartBody(t,
			field{name: "text", value: "from text"},
			field{name: "markdown", value: "from markdown"},
		)
		resp, _ := do(t, app, "/convert", ctype, body)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		require.Equal(t, "from text", conv.last.Markdown, "run %d", i)
	}
}
