// Package disk talks to the Yandex Disk REST API: upload slot, PUT bytes, download link.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sqids/sqids-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultHost = "https://cloud-api.yandex.net"

var (
	ErrNoHref     = errors.New("disk: response has no href")
	ErrNoLocation = errors.New("disk: upload response has no Location header")
)

type Client struct {
	token string
	host  string
	http  *http.Client
	sq    *sqids.Sqids
	seq   atomic.Uint64
	now   func() time.Time
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("disk: %s: unexpected status %d", e.Op, e.Status)
}

// New builds a client. httpClient nil means a default client with an otelhttp transport.
func New(token, host string, httpClient *http.Client) (*Client, error) {
	if host == "" {
		host = DefaultHost
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	sq, err := sqids.New(sqids.Options{
		Alphabet:  "k3G7QAe51FCsiWrNOYBUwM6XzZvdLT4j9JhyHKg2cVbxfERq0mSoI8lDpunPat",
		MinLength: 6,
	})
	if err != nil {
		return nil, fmt.Errorf("disk: sqids init: %w", err)
	}
	return &Client{
		token: token,
		host:  strings.TrimRight(host, "/"),
		http:  httpClient,
		sq:    sq,
		now:   time.Now,
	}, nil
}

// remoteName 给文件名加上唯一前缀，避免同名上传互相覆盖（overwrite=true）。
func (c *Client) remoteName(name string) (string, error) {
	prefix, err := c.sq.Encode([]uint64{uint64(c.now().Unix()), c.seq.Add(1)})
	if err != nil {
		return "", err
	}
	return "app:/" + prefix + "_" + name, nil
}

type hrefBody struct {
	Href string `json:"href"`
}

func (c *Client) getHref(ctx context.Context, op, path string, query url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Op: op, Status: resp.StatusCode}
	}

	var body hrefBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("disk: %s: decode: %w", op, err)
	}
	if body.Href == "" {
		return "", ErrNoHref
	}
	return body.Href, nil
}

func (c *Client) RequestUploadSlot(ctx context.Context, name string) (string, error) {
	remote, err := c.remoteName(name)
	if err != nil {
		return "", err
	}
	return c.getHref(ctx, "upload slot", "/v1/disk/resources/upload", url.Values{
		"path":      {remote},
		"overwrite": {"true"},
	})
}

// TransferBytes PUTs body to the signed target and returns the disk path from Location.
func (c *Client) TransferBytes(ctx context.Context, target string, body io.Reader, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return "", err
	}
	if size > 0 {
		req.ContentLength = size
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Op: "transfer", Status: resp.StatusCode}
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", ErrNoLocation
	}
	if unescaped, err := url.PathUnescape(loc); err == nil {
		loc = unescaped
	}
	return strings.TrimPrefix(loc, "/disk"), nil
}

func (c *Client) RequestDownloadLink(ctx context.Context, location string) (string, error) {
	return c.getHref(ctx, "download link", "/v1/disk/resources/download", url.Values{
		"path": {location},
	})
}
