package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/platform/metrics"
)

// Provider is the remote storage, a three call protocol per file.
type Provider interface {
	// RequestUploadSlot returns the target the bytes of name must be sent to.
	RequestUploadSlot(ctx context.Context, name string) (string, error)
	// TransferBytes sends body to target and returns the storage location.
	TransferBytes(ctx context.Context, target string, body io.Reader, size int64) (string, error)
	// RequestDownloadLink returns a public download URL for location.
	RequestDownloadLink(ctx context.Context, location string) (string, error)
}

type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Result 每个文件恰好对应一个结果；Error 为空表示成功。
type Result struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

const defaultCallTimeout = 30 * time.Second

type Pipeline struct {
	provider    Provider
	creator     shortlink.Creator
	gate        *Gate
	callTimeout time.Duration
	tracer      trace.Tracer
}

func New(provider Provider, creator shortlink.Creator, gate *Gate, callTimeout time.Duration) *Pipeline {
	if gate == nil {
		gate = NewGate()
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Pipeline{
		provider:    provider,
		creator:     creator,
		gate:        gate,
		callTimeout: callTimeout,
		tracer:      otel.Tracer("yacut/upload"),
	}
}

// UploadAll uploads every file in parallel and registers each download link under a generated
// short id. Registrations go through the gate one at a time. Results keep the order of files.
func (p *Pipeline) UploadAll(ctx context.Context, files []File, baseURL string) []Result {
	results := make([]Result, len(files))
	if len(files) == 0 {
		return results
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var wg sync.WaitGroup
	wg.Add(len(files))
	for i := range files {
		go func(i int) {
			defer wg.Done()
			results[i] = p.uploadOne(ctx, files[i], baseURL)
		}(i)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) uploadOne(ctx context.Context, f File, baseURL string) Result {
	ctx, span := p.tracer.Start(ctx, "upload.file", trace.WithAttributes(
		attribute.String("file.name", f.Name),
		attribute.Int64("file.size", f.Size),
	))
	defer span.End()

	short, err := p.process(ctx, f)
	if err != nil {
		kind := shortlink.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		metrics.UploadFiles.WithLabelValues(outcome(kind)).Inc()
		slog.Warn("upload failed", "file", f.Name, "kind", kind.String(), "err", err)
		return Result{Name: f.Name, URL: baseURL, Error: Message(err)}
	}

	metrics.UploadFiles.WithLabelValues("ok").Inc()
	return Result{Name: f.Name, URL: baseURL + "/" + short}
}

func (p *Pipeline) process(ctx context.Context, f File) (string, error) {
	var target, location, link string

	err := p.step(ctx, "upload.slot", shortlink.KindUploadSlot, func(ctx context.Context) error {
		var err error
		target, err = p.provider.RequestUploadSlot(ctx, f.Name)
		return err
	})
	if err != nil {
		return "", err
	}

	err = p.step(ctx, "upload.transfer", shortlink.KindTransfer, func(ctx context.Context) error {
		body, err := f.Open()
		if err != nil {
			return err
		}
		defer body.Close()
		location, err = p.provider.TransferBytes(ctx, target, body, f.Size)
		return err
	})
	if err != nil {
		return "", err
	}

	err = p.step(ctx, "upload.download_link", shortlink.KindDownloadLink, func(ctx context.Context) error {
		var err error
		link, err = p.provider.RequestDownloadLink(ctx, location)
		return err
	})
	if err != nil {
		return "", err
	}

	ctx, span := p.tracer.Start(ctx, "upload.register")
	defer span.End()

	var short string
	err = p.gate.Do(ctx, func() error {
		var err error
		short, err = p.creator.Register(ctx, link, "")
		return err
	})
	if err != nil {
		span.RecordError(err)
		if shortlink.KindOf(err) == shortlink.KindUnknown {
			// 等待闸门时 ctx 已结束
			err = shortlink.Wrap(shortlink.KindPersistence, "upload.register", err)
		}
		return "", err
	}
	return short, nil
}

// step runs one provider call under its own timeout; any failure, a timeout included, gets kind.
func (p *Pipeline) step(ctx context.Context, name string, kind shortlink.Kind, call func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	if err := call(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		return shortlink.Wrap(kind, name, err)
	}
	return nil
}

func outcome(kind shortlink.Kind) string {
	switch kind {
	case shortlink.KindUploadSlot, shortlink.KindTransfer, shortlink.KindDownloadLink,
		shortlink.KindPersistence, shortlink.KindNamingConflict, shortlink.KindAllocation:
		return kind.String()
	default:
		return "other"
	}
}

// Message is the user facing text for a failed file.
func Message(err error) string {
	switch shortlink.KindOf(err) {
	case shortlink.KindUploadSlot:
		return "Failed to get an upload link for the disk."
	case shortlink.KindTransfer:
		return "Failed to upload the file to the disk."
	case shortlink.KindDownloadLink:
		return "Failed to get a download link."
	case shortlink.KindPersistence, shortlink.KindNamingConflict, shortlink.KindAllocation:
		return "Failed to create a database record."
	default:
		var e *shortlink.Error
		if errors.As(err, &e) && e.Err != nil {
			err = e.Err
		}
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
