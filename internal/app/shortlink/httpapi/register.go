package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/app/shortlink/stats"
	"yacut.local/internal/app/shortlink/upload"
	"yacut.local/internal/platform/httpmiddleware"
)

// Uploader is the file upload pipeline as the /files page needs it.
type Uploader interface {
	UploadAll(ctx context.Context, files []upload.File, baseURL string) []upload.Result
}

// Deps 由 cmd/api 组装后传入；本包只做传输层翻译，领域逻辑在 internal/app/shortlink。
type Deps struct {
	Creator   shortlink.Creator
	Resolver  shortlink.Resolver
	Uploader  Uploader
	Collector stats.Collector

	// BaseURL is the public origin of short links; empty means "derive from the request".
	BaseURL         string
	UploadMaxMemory int64
}

// RegisterRoutes mounts the JSON API, the HTML pages and the redirect.
// Besides the reserved "files" page, no single-segment route is registered here.
//
// gorilla/mux matches in registration order, so the catch-all /{short_id} goes last.
func RegisterRoutes(r *mux.Router, d Deps) {
	if d.Collector == nil {
		d.Collector = stats.Discard{}
	}
	if d.UploadMaxMemory <= 0 {
		d.UploadMaxMemory = 32 << 20
	}
	links := linkBuilder{baseURL: d.BaseURL}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/id/", NewCreateHandler(d.Creator, links)).Methods(http.MethodPost)
	api.HandleFunc("/id/{short_id}/", NewGetOriginalHandler(d.Resolver)).Methods(http.MethodGet)
	// 子路由自己处理 405，否则会落到外层的 NotFoundHandler
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})

	r.HandleFunc("/", NewIndexHandler(d.Creator, links)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/"+shortlink.ReservedShort, NewFilesHandler(d.Uploader, links, d.UploadMaxMemory)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{short_id}", NewRedirectHandler(d.Resolver, d.Collector)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		renderPage(w, http.StatusNotFound, "404.html", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
}

// Healthz is the liveness probe, mounted on the admin listener.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
