package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/app/shortlink/stats"
	"yacut.local/internal/app/shortlink/upload"
	"yacut.local/internal/platform/httpmiddleware"
	"yacut.local/internal/platform/metrics"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = loadPages("index.html", "files.html", "404.html", "500.html")

func loadPages(names ...string) map[string]*template.Template {
	m := make(map[string]*template.Template, len(names))
	for _, name := range names {
		m[name] = template.Must(template.ParseFS(templatesFS, "templates/base.html", "templates/"+name))
	}
	return m
}

// renderPage 先渲染到缓冲区，模板出错时还能返回干净的 500。
func renderPage(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, "base", data); err != nil {
		slog.Error("render page failed", "page", name, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

const (
	msgFieldRequired   = "Required field"
	msgInvalidURL      = "Invalid URL"
	msgShortLength     = "Length must be between 1 and 16 characters."
	msgShortCharacters = "Only Latin letters and digits are allowed"
	msgSelectFiles     = "Select files"
	msgSaveFailedPage  = "Failed to save the record."
)

type indexPage struct {
	OriginalLink string
	CustomID     string
	Errors       map[string]string
	Notice       string
	ShortURL     string
}

// validate fills per-field errors the way the form shows them.
func (p *indexPage) validate() bool {
	p.Errors = map[string]string{}
	switch {
	case p.OriginalLink == "":
		p.Errors["original_link"] = msgFieldRequired
	case len(p.OriginalLink) > shortlink.MaxOriginalLen:
		p.Errors["original_link"] = msgURLTooLong
	case shortlink.ValidateURL(p.OriginalLink) != nil:
		p.Errors["original_link"] = msgInvalidURL
	}
	if p.CustomID != "" {
		if len(p.CustomID) > shortlink.MaxShortLen {
			p.Errors["custom_id"] = msgShortLength
		} else if shortlink.ValidateCustomID(p.CustomID) != nil {
			p.Errors["custom_id"] = msgShortCharacters
		}
	}
	return len(p.Errors) == 0
}

func NewIndexHandler(c shortlink.Creator, links linkBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := &indexPage{}
		if r.Method != http.MethodPost {
			renderPage(w, http.StatusOK, "index.html", page)
			return
		}

		page.OriginalLink = strings.TrimSpace(r.PostFormValue("original_link"))
		page.CustomID = strings.TrimSpace(r.PostFormValue("custom_id"))
		if !page.validate() {
			renderPage(w, http.StatusOK, "index.html", page)
			return
		}

		short, err := c.Register(r.Context(), page.OriginalLink, page.CustomID)
		switch {
		case err == nil:
			page.ShortURL = links.short(r, short)
		case shortlink.KindOf(err) == shortlink.KindNamingConflict:
			page.Notice = msgShortTaken
		default:
			page.Notice = msgSaveFailedPage
		}
		renderPage(w, http.StatusOK, "index.html", page)
	}
}

type filesPage struct {
	Errors  map[string]string
	Results []upload.Result
}

func NewFilesHandler(u Uploader, links linkBuilder, maxMemory int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := &filesPage{Errors: map[string]string{}}
		if r.Method != http.MethodPost {
			renderPage(w, http.StatusOK, "files.html", page)
			return
		}

		if err := r.ParseMultipartForm(maxMemory); err != nil {
			slog.Warn("parse multipart form failed", "err", err)
			page.Errors["files"] = msgSelectFiles
			renderPage(w, http.StatusOK, "files.html", page)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		var files []upload.File
		for _, fh := range r.MultipartForm.File["files"] {
			// 空的 file input 也会提交一个没有文件名的 part
			if fh.Filename == "" {
				continue
			}
			files = append(files, upload.File{
				Name: fh.Filename,
				Size: fh.Size,
				Open: func() (io.ReadCloser, error) { return fh.Open() },
			})
		}
		if len(files) == 0 {
			page.Errors["files"] = msgSelectFiles
			renderPage(w, http.StatusOK, "files.html", page)
			return
		}

		page.Results = u.UploadAll(r.Context(), files, links.origin(r))
		renderPage(w, http.StatusOK, "files.html", page)
	}
}

func NewRedirectHandler(res shortlink.Resolver, collector stats.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		short := mux.Vars(r)["short_id"]
		original, err := res.Resolve(r.Context(), short)
		if err != nil {
			if shortlink.KindOf(err) == shortlink.KindNotFound {
				renderPage(w, http.StatusNotFound, "404.html", nil)
				return
			}
			renderPage(w, http.StatusInternalServerError, "500.html", nil)
			return
		}

		metrics.ShortlinkRedirects.Inc()
		// 异步记录点击，不阻塞跳转
		collector.Collect(stats.Hit{
			Short:     short,
			At:        time.Now().UTC(),
			IP:        httpmiddleware.ClientIP(r),
			Referer:   r.Referer(),
			UserAgent: r.UserAgent(),
		})

		http.Redirect(w, r, original, http.StatusFound)
	}
}
