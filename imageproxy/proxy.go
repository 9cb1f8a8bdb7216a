// Package imageproxy relays recipe images through this service so clients
// never hotlink the source sites.
package imageproxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	Path = "/api/image-proxy"

	userAgent          = "Mozilla/5.0"
	defaultContentType = "image/jpeg"
	cacheControl       = "public, max-age=86400"
	maxResizeWidth     = 2048
)

var errTooLarge = errors.New("image exceeds size limit")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Proxy struct {
	Client   HTTPClient
	MaxBytes int64
	Timeout  time.Duration
	Log      logrus.FieldLogger

	// allowed is empty when any host may be fetched.
	allowed map[string]bool
}

func New(client HTTPClient, allowedHosts []string, maxBytes int64, log logrus.FieldLogger) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	p := &Proxy{Client: client, MaxBytes: maxBytes, Timeout: 15 * time.Second, Log: log}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			if p.allowed == nil {
				p.allowed = make(map[string]bool)
			}
			p.allowed[h] = true
		}
	}
	return p
}

// URL returns the proxied location of a stored image URL. Stray quotes left
// over from scraping are stripped. An empty input gives "".
func URL(raw string) string {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
	if raw == "" {
		return ""
	}
	return Path + "?url=" + url.QueryEscape(raw)
}

// Handle serves GET /api/image-proxy?url=<image>[&w=<width>].
func (p *Proxy) Handle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "Missing URL", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		http.Error(w, "Invalid URL", http.StatusBadRequest)
		return
	}
	if p.allowed != nil && !p.allowed[strings.ToLower(target.Hostname())] {
		http.Error(w, "Host not allowed", http.StatusForbidden)
		return
	}

	log := p.Log.WithField("url", raw)
	log.Debug("proxying image")

	body, contentType, status, err := p.fetch(r.Context(), target.String())
	if err != nil {
		log.WithError(err).Error("failed to fetch image")
		http.Error(w, "Failed to fetch image", http.StatusInternalServerError)
		return
	}
	// Upstream errors are relayed as they came, and never cached.
	if status < 200 || status >= 300 {
		log.WithField("status", status).Warn("upstream refused image")
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	if width, err := strconv.Atoi(r.URL.Query().Get("w")); err == nil && width > 0 && width <= maxResizeWidth {
		if resized, ct, err := resize(body, contentType, width); err != nil {
			log.WithError(err).Debug("serving original image")
		} else {
			body, contentType = resized, ct
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (p *Proxy) fetch(ctx context.Context, target string) ([]byte, string, int, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, "", 0, errors.Wrap(err, "get image")
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if p.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, p.MaxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", 0, errors.Wrap(err, "read image")
	}
	if p.MaxBytes > 0 && int64(len(body)) > p.MaxBytes {
		return nil, "", 0, errTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return body, contentType, resp.StatusCode, nil
}

// resize scales the image down to width, keeping its aspect ratio. Images
// already narrower than width are returned unchanged.
func resize(body []byte, contentType string, width int) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", errors.Wrap(err, "decode image")
	}
	if img.Bounds().Dx() <= width {
		return body, contentType, nil
	}

	format, ct := imaging.JPEG, "image/jpeg"
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		format, ct = imaging.PNG, "image/png"
	case strings.HasPrefix(contentType, "image/gif"):
		format, ct = imaging.GIF, "image/gif"
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Resize(img, width, 0, imaging.Lanczos), format); err != nil {
		return nil, "", errors.Wrap(err, "encode image")
	}
	return buf.Bytes(), ct, nil
}
