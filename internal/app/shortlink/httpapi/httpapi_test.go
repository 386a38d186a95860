package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/app/shortlink/repo"
	"yacut.local/internal/app/shortlink/stats"
	"yacut.local/internal/app/shortlink/upload"
	"yacut.local/internal/platform/httpmiddleware"
)

type fakeUploader struct {
	got     []string
	bodies  []string
	baseURL string
}

func (u *fakeUploader) UploadAll(_ context.Context, files []upload.File, baseURL string) []upload.Result {
	u.baseURL = baseURL
	out := make([]upload.Result, len(files))
	for i, f := range files {
		u.got = append(u.got, f.Name)
		rc, err := f.Open()
		if err == nil {
			b, _ := io.ReadAll(rc)
			rc.Close()
			u.bodies = append(u.bodies, string(b))
		}
		out[i] = upload.Result{Name: f.Name, URL: baseURL + "/up" + string(rune('A'+i))}
	}
	return out
}

type testServer struct {
	router    *mux.Router
	store     *repo.MemoryStore
	collector *stats.ChannelCollector
	uploader  *fakeUploader
}

func newTestServer(t *testing.T, baseURL string) *testServer {
	t.Helper()
	store := repo.NewMemoryStore()
	registrar := shortlink.NewRegistrar(store, nil)
	collector := stats.NewChannelCollector(10)
	t.Cleanup(collector.Close)
	up := &fakeUploader{}

	r := mux.NewRouter()
	RegisterRoutes(r, Deps{
		Creator:   registrar,
		Resolver:  registrar,
		Uploader:  up,
		Collector: collector,
		BaseURL:   baseURL,
	})
	return &testServer{router: r, store: store, collector: collector, uploader: up}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/id/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpmiddleware.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func TestAPI_CreateGenerated(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.postJSON(`{"url":"https://example.com/long"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://example.com/long", resp.URL)
	require.True(t, strings.HasPrefix(resp.ShortLink, "http://example.com/"), resp.ShortLink)
	assert.Len(t, strings.TrimPrefix(resp.ShortLink, "http://example.com/"), shortlink.GeneratedLen)
}

func TestAPI_CreateCustomUsesBaseURL(t *testing.T) {
	s := newTestServer(t, "https://ya.cut/")
	rec := s.postJSON(`{"url":"https://example.com","custom_id":"mine"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://ya.cut/mine", resp.ShortLink)
}

func TestAPI_CreateNullOrEmptyCustomIDGenerates(t *testing.T) {
	s := newTestServer(t, "")
	for _, body := range []string{`{"url":"https://example.com","custom_id":null}`, `{"url":"https://example.com","custom_id":""}`} {
		rec := s.postJSON(body)
		assert.Equal(t, http.StatusCreated, rec.Code, body)
	}
	assert.Equal(t, 2, s.store.Len())
}

func TestAPI_CreateErrors(t *testing.T) {
	s := newTestServer(t, "")
	require.Equal(t, http.StatusCreated, s.postJSON(`{"url":"https://example.com","custom_id":"taken"}`).Code)

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"empty body", ``, msgBodyMissing},
		{"not json", `url=x`, msgBodyMissing},
		{"empty object", `{}`, msgBodyMissing},
		{"null", `null`, msgBodyMissing},
		{"no url", `{"custom_id":"abc"}`, msgURLRequired},
		{"url not string", `{"url":42}`, msgURLRequired},
		{"bad chars", `{"url":"https://example.com","custom_id":"bad id!"}`, msgInvalidShort},
		{"too long", `{"url":"https://example.com","custom_id":"abcdefghijklmnopq"}`, msgInvalidShort},
		{"custom not string", `{"url":"https://example.com","custom_id":123}`, msgInvalidShort},
		{"taken", `{"url":"https://other.example","custom_id":"taken"}`, msgShortTaken},
		{"reserved", `{"url":"https://example.com","custom_id":"files"}`, msgShortTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.postJSON(tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decodeMessage(t, rec))
		})
	}
	assert.Equal(t, 1, s.store.Len())
}

type failingCreator struct{}

func (failingCreator) Register(context.Context, string, string) (string, error) {
	return "", shortlink.Wrap(shortlink.KindPersistence, "register", errors.New("db down"))
}

func TestAPI_CreatePersistenceFailure(t *testing.T) {
	r := mux.NewRouter()
	RegisterRoutes(r, Deps{Creator: failingCreator{}, Resolver: shortlink.NewRegistrar(repo.NewMemoryStore(), nil)})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/id/", strings.NewReader(`{"url":"https://example.com"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgSaveFailed, decodeMessage(t, rec))
}

func TestAPI_GetOriginal(t *testing.T) {
	s := newTestServer(t, "")
	require.NoError(t, s.store.Insert(context.Background(), "https://example.com/x", "known"))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/id/known/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://example.com/x"}`, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/id/nope/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgIDNotFound, decodeMessage(t, rec))
}

func TestAPI_WrongMethod(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/id/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, msgMethodNotAllowed, decodeMessage(t, rec))

	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/id/abc/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodDelete, "/files", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRedirect(t *testing.T) {
	s := newTestServer(t, "")
	require.NoError(t, s.store.Insert(context.Background(), "https://example.com/target", "go"))

	req := httptest.NewRequest(http.MethodGet, "/go", nil)
	req.Header.Set("Referer", "https://ref.example")
	rec := s.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/target", rec.Header().Get("Location"))

	hit := <-s.collector.Events()
	assert.Equal(t, "go", hit.Short)
	assert.Equal(t, "https://ref.example", hit.Referer)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestRoutePriority(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/files", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="files"`)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/some/deep/path", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// 公开路由上除 files 外没有单段路径，任何合法自定义短码都能跳转。
func TestCustomIDsNamedLikeServiceRoutesRedirect(t *testing.T) {
	s := newTestServer(t, "http://short.test")

	for _, id := range []string{"healthz", "readyz", "metrics", "version", "api"} {
		rec := s.postJSON(`{"url":"https://example.com/` + id + `","custom_id":"` + id + `"}`)
		require.Equal(t, http.StatusCreated, rec.Code, id)

		rec = s.do(httptest.NewRequest(http.MethodGet, "/"+id, nil))
		assert.Equal(t, http.StatusFound, rec.Code, id)
		assert.Equal(t, "https://example.com/"+id, rec.Header().Get("Location"), id)
		<-s.collector.Events()
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func postForm(s *testServer, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func TestIndexForm(t *testing.T) {
	s := newTestServer(t, "http://ya.cut")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="original_link"`)

	rec = postForm(s, url.Values{"original_link": {"https://example.com/page"}, "custom_id": {"page"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://ya.cut/page")

	rec = postForm(s, url.Values{"original_link": {"https://example.com/other"}, "custom_id": {"page"}})
	assert.Contains(t, rec.Body.String(), msgShortTaken)

	rec = postForm(s, url.Values{"original_link": {"https://example.com"}, "custom_id": {"files"}})
	assert.Contains(t, rec.Body.String(), msgShortTaken)

	rec = postForm(s, url.Values{"original_link": {"not a url"}, "custom_id": {"bad-id"}})
	body := rec.Body.String()
	assert.Contains(t, body, msgInvalidURL)
	assert.Contains(t, body, msgShortCharacters)

	rec = postForm(s, url.Values{"custom_id": {"abcdefghijklmnopq"}})
	body = rec.Body.String()
	assert.Contains(t, body, msgFieldRequired)
	assert.Contains(t, body, msgShortLength)

	assert.Equal(t, 1, s.store.Len())
}

func TestFilesUpload(t *testing.T) {
	s := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.txt"} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte("content of " + name))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := s.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a.txt", "b.txt"}, s.uploader.got)
	assert.Equal(t, []string{"content of a.txt", "content of b.txt"}, s.uploader.bodies)
	assert.Equal(t, "https://example.com", s.uploader.baseURL)
	assert.Contains(t, rec.Body.String(), "https://example.com/upA")
	assert.Contains(t, rec.Body.String(), "https://example.com/upB")
}

func TestFilesUploadWithoutFiles(t *testing.T) {
	s := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), msgSelectFiles)
	assert.Empty(t, s.uploader.got)
}
