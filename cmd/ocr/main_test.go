package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/u13596216391/OCR-v1/pkg/endpoint"
	"go.uber.org/zap"
)

type hit struct {
	method string
	path   string
	body   string
	file   string
	auth   string
}

type fakeBackend struct {
	*httptest.Server
	mu   sync.Mutex
	hits []hit
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := hit{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if f, _, err := r.FormFile("file"); err == nil {
				b, _ := io.ReadAll(f)
				h.file = string(b)
			}
		} else {
			b, _ := io.ReadAll(r.Body)
			h.body = string(b)
		}
		fb.mu.Lock()
		fb.hits = append(fb.hits, h)
		fb.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/documents/":
			io.WriteString(w, `[{"id":1,"original_pdf_path":"pdfs/a.pdf","mineru_json_path":null,"status":"processed","created_at":"2024-03-01T10:00:00Z"}]`)
		case r.URL.Path == "/api/documents/404/to-label-studio/":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"Document not found"}`)
		case strings.HasSuffix(r.URL.Path, "/to-label-studio/"):
			io.WriteString(w, `[{"data":{"path":"`+r.URL.Path+`"}}]`)
		case strings.HasSuffix(r.URL.Path, "/to-ragflow/"):
			io.WriteString(w, `{"doc_id":"7","kb_name":"default","chunks":[{"content_ltxt":"a"},{"content_ltxt":"b"}]}`)
		default:
			io.WriteString(w, `{"message":"ok"}`)
		}
	}))
	t.Cleanup(fb.Close)
	return fb
}

func (fb *fakeBackend) all() []hit {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]hit(nil), fb.hits...)
}

func (fb *fakeBackend) last(t *testing.T) hit {
	t.Helper()
	hits := fb.all()
	require.NotEmpty(t, hits, "backend saw no requests")
	return hits[len(hits)-1]
}

func testApp(env map[string]string) (*app, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &app{
		fs:  afero.NewMemMapFs(),
		in:  strings.NewReader(""),
		out: out,
		lookup: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
		v:      viper.New(),
		logger: zap.NewNop(),
	}, out
}

func run(t *testing.T, a *app, args ...string) error {
	t.Helper()
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	return root.Execute()
}

func backendEnv(fb *fakeBackend) map[string]string {
	return map[string]string{endpoint.EnvVar: fb.URL + "/api"}
}

// ── resolve ─────────────────────────────────────────────────────────────

func TestResolve_precedence(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		a, out := testApp(nil)
		require.NoError(t, run(t, a, "resolve"))
		assert.Contains(t, out.String(), "Base URL:  /api")
		assert.Contains(t, out.String(), "Source:    default")
		assert.Contains(t, out.String(), "Effective: http://localhost:8082/api")
	})

	t.Run("env", func(t *testing.T) {
		a, out := testApp(map[string]string{endpoint.EnvVar: "http://backend:8010/api"})
		require.NoError(t, run(t, a, "resolve"))
		assert.Contains(t, out.String(), "Source:    env")
		assert.Contains(t, out.String(), "Effective: http://backend:8010/api")
	})

	t.Run("empty env falls through", func(t *testing.T) {
		a, out := testApp(map[string]string{endpoint.EnvVar: ""})
		require.NoError(t, run(t, a, "resolve"))
		assert.Contains(t, out.String(), "Source:    default")
	})

	t.Run("config", func(t *testing.T) {
		a, out := testApp(nil)
		require.NoError(t, afero.WriteFile(a.fs, "/etc/ocr.yaml", []byte("base_url: https://ocr.example.com/api\n"), 0o644))
		require.NoError(t, run(t, a, "--config", "/etc/ocr.yaml", "resolve"))
		assert.Contains(t, out.String(), "Source:    config")
		assert.Contains(t, out.String(), "Effective: https://ocr.example.com/api")
	})

	t.Run("flag wins", func(t *testing.T) {
		a, out := testApp(map[string]string{endpoint.EnvVar: "http://backend:8010/api"})
		require.NoError(t, run(t, a, "--base-url", "http://flag:1/api", "resolve"))
		assert.Contains(t, out.String(), "Source:    flag")
		assert.Contains(t, out.String(), "Effective: http://flag:1/api")
	})

	t.Run("origin flag", func(t *testing.T) {
		a, out := testApp(nil)
		require.NoError(t, run(t, a, "--origin", "https://app.example.com", "resolve"))
		assert.Contains(t, out.String(), "Effective: https://app.example.com/api")
	})
}

func TestCertDirAndInsecureConflict(t *testing.T) {
	a, _ := testApp(nil)
	err := run(t, a, "--cert-dir", "/certs", "--insecure", "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used together")

	a, _ = testApp(nil)
	require.NoError(t, afero.WriteFile(a.fs, "/ocr.yaml", []byte("cert_dir: /certs\n"), 0o644))
	err = run(t, a, "--config", "/ocr.yaml", "--insecure", "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used together")
}

func TestSetup_badConfig(t *testing.T) {
	a, _ := testApp(nil)
	require.NoError(t, afero.WriteFile(a.fs, "/bad.yaml", []byte("base_url: [unterminated\n"), 0o644))
	err := run(t, a, "--config", "/bad.yaml", "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// ── documents ───────────────────────────────────────────────────────────

func TestDocuments_list(t *testing.T) {
	fb := newFakeBackend(t)

	t.Run("json is raw", func(t *testing.T) {
		a, out := testApp(backendEnv(fb))
		require.NoError(t, run(t, a, "documents"))
		assert.True(t, strings.HasPrefix(out.String(), `[{"id":1,`))
		assert.Equal(t, "/api/documents/", fb.last(t).path)
	})

	t.Run("text table", func(t *testing.T) {
		a, out := testApp(backendEnv(fb))
		require.NoError(t, run(t, a, "documents", "list", "--format", "text"))
		assert.Contains(t, out.String(), "ID")
		assert.Contains(t, out.String(), "processed")
		assert.Contains(t, out.String(), "a.pdf")
	})

	t.Run("yaml", func(t *testing.T) {
		a, out := testApp(backendEnv(fb))
		require.NoError(t, run(t, a, "docs", "--format", "yaml"))
		assert.Contains(t, out.String(), "status: processed")
	})

	t.Run("unknown format", func(t *testing.T) {
		a, _ := testApp(backendEnv(fb))
		require.Error(t, run(t, a, "documents", "--format", "xml"))
	})
}

func TestDocuments_deleteConfirmation(t *testing.T) {
	fb := newFakeBackend(t)

	a, out := testApp(backendEnv(fb))
	a.in = strings.NewReader("n\n")
	require.NoError(t, run(t, a, "documents", "delete", "5"))
	assert.Contains(t, out.String(), "Aborted.")
	assert.Empty(t, fb.all())

	a, out = testApp(backendEnv(fb))
	a.in = strings.NewReader("y\n")
	require.NoError(t, run(t, a, "documents", "delete", "5"))
	assert.Contains(t, out.String(), "✓ Document deleted: 5")
	assert.Equal(t, hit{method: http.MethodDelete, path: "/api/documents/5/"}, fb.last(t))

	a, _ = testApp(backendEnv(fb))
	require.NoError(t, run(t, a, "documents", "delete", "6", "--force"))
	assert.Equal(t, "/api/documents/6/", fb.last(t).path)
}

// ── upload / correct ────────────────────────────────────────────────────

func TestUpload(t *testing.T) {
	fb := newFakeBackend(t)
	a, out := testApp(backendEnv(fb))
	require.NoError(t, afero.WriteFile(a.fs, "/in/scan.pdf", []byte("%PDF-1.4"), 0o644))

	require.NoError(t, run(t, a, "upload", "/in/scan.pdf"))

	got := fb.last(t)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/documents/upload/", got.path)
	assert.Equal(t, "%PDF-1.4", got.file)
	assert.Contains(t, out.String(), `{"message":"ok"}`)
}

func TestUpload_missingFile(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))

	err := run(t, a, "upload", "/nope.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open /nope.pdf")
	assert.Empty(t, fb.all())
}

func TestCorrect(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))
	require.NoError(t, afero.WriteFile(a.fs, "export.json", []byte(`[{"id":1}]`), 0o644))

	require.NoError(t, run(t, a, "correct", "9", "export.json"))

	got := fb.last(t)
	assert.Equal(t, "/api/documents/9/submit-correction/", got.path)
	assert.Equal(t, `[{"id":1}]`, got.file)
}

// ── tasks ───────────────────────────────────────────────────────────────

func TestTasks_single(t *testing.T) {
	fb := newFakeBackend(t)
	a, out := testApp(backendEnv(fb))

	require.NoError(t, run(t, a, "tasks", "3"))
	assert.Equal(t, `[{"data":{"path":"/api/documents/3/to-label-studio/"}}]`+"\n", out.String())
}

func TestTasks_manyToDirectory(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))

	require.NoError(t, run(t, a, "tasks", "1", "2", "3", "-o", "/exports"))

	for _, id := range []string{"1", "2", "3"} {
		b, err := afero.ReadFile(a.fs, "/exports/"+id+".json")
		require.NoError(t, err, id)
		assert.Contains(t, string(b), "/api/documents/"+id+"/to-label-studio/")
	}
	assert.Len(t, fb.all(), 3)
}

func TestTasks_idsStayInsideOutputDir(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))

	require.NoError(t, run(t, a, "tasks", "1", "../x", "-o", "/exports/run"))

	escaped, _ := afero.Exists(a.fs, "/exports/run/..%2Fx.json")
	assert.True(t, escaped)
	outside, _ := afero.Exists(a.fs, "/exports/x.json")
	assert.False(t, outside)
}

func TestTaskFileName(t *testing.T) {
	assert.Equal(t, "12.json", taskFileName("12"))
	assert.Equal(t, "a%2Fb.json", taskFileName("a/b"))
	assert.Equal(t, "..%2F..%2Fetc.json", taskFileName("../../etc"))
	assert.Equal(t, "a%5Cb.json", taskFileName(`a\b`))
}

func TestTasks_partialFailure(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))

	err := run(t, a, "tasks", "1", "404", "-o", "/exports")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document 404")
	assert.Contains(t, err.Error(), "404")

	exists, _ := afero.Exists(a.fs, "/exports/1.json")
	assert.True(t, exists, "successful export is still written")
}

// ── import / ingest / ragflow ───────────────────────────────────────────

func TestImport(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))

	require.NoError(t, run(t, a, "import", "12", "13", "--project", "3"))

	got := fb.last(t)
	assert.Equal(t, "/api/documents/auto-import-to-label-studio/", got.path)
	assert.JSONEq(t, `{"doc_ids":["12","13"],"project_id":3}`, got.body)
}

func TestImport_requiresProject(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))

	require.Error(t, run(t, a, "import", "12"))
	assert.Empty(t, fb.all())
}

func TestIngest(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))
	payload := `{"doc_id":"7","kb_name":"default","chunks":[{"content_ltxt":"x"}]}`
	require.NoError(t, afero.WriteFile(a.fs, "payload.json", []byte(payload), 0o644))

	require.NoError(t, run(t, a, "ingest", "7", "payload.json"))

	got := fb.last(t)
	assert.Equal(t, "/api/documents/7/ingest-to-ragflow/", got.path)
	assert.Equal(t, payload, got.body)
}

func TestIngest_invalidJSON(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))
	require.NoError(t, afero.WriteFile(a.fs, "payload.json", []byte(`{not json`), 0o644))

	err := run(t, a, "ingest", "7", "payload.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
	assert.Empty(t, fb.all())
}

func TestRAGFlow(t *testing.T) {
	fb := newFakeBackend(t)

	a, out := testApp(backendEnv(fb))
	require.NoError(t, run(t, a, "ragflow", "7", "--format", "text"))
	assert.Contains(t, out.String(), "KB:        default")
	assert.Contains(t, out.String(), "Chunks:    2")

	a, _ = testApp(backendEnv(fb))
	require.NoError(t, run(t, a, "ragflow", "7", "-o", "out/payload.json"))
	b, err := afero.ReadFile(a.fs, "out/payload.json")
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kb_name":"default"`)
}

func TestToken_sentAsBearer(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := testApp(backendEnv(fb))

	require.NoError(t, run(t, a, "--token", "s3cret", "documents"))
	assert.Equal(t, "Bearer s3cret", fb.last(t).auth)
}
