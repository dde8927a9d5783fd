package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/tourguide/internal/models"
)

// ErrMalformedImage is returned when input cannot be turned into an image payload
var ErrMalformedImage = errors.New("malformed image")

// DefaultMaxBytes caps downloads and file reads
const DefaultMaxBytes = 10 * 1024 * 1024

// Fetcher loads images from files, URLs and data URLs
type Fetcher struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxBytes: DefaultMaxBytes,
	}
}

// Load resolves ref, which may be a data URL, an http(s) URL or a local file path
func (f *Fetcher) Load(ctx context.Context, ref string) (models.ImagePayload, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return models.ImagePayload{}, fmt.Errorf("%w: empty image reference", ErrMalformedImage)
	case strings.HasPrefix(ref, "data:"):
		return FromDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.download(ctx, ref)
	default:
		return f.readFile(ref)
	}
}

func (f *Fetcher) readFile(path string) (models.ImagePayload, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	data, err := f.readLimited(file)
	if err != nil {
		return models.ImagePayload{}, err
	}

	return FromBytes(data, "")
}

func (f *Fetcher) download(ctx context.Context, url string) (models.ImagePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ImagePayload{}, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return models.ImagePayload{}, err
	}

	slog.Debug("Downloaded image", "url", url, "bytes", len(data))
	return FromBytes(data, resp.Header.Get("Content-Type"))
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: image too large (max %d bytes)", ErrMalformedImage, limit)
	}
	return data, nil
}

// FromDataURL decodes a base64 data URL such as "data:image/png;base64,iVBOR..."
func FromDataURL(dataURL string) (models.ImagePayload, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !ok {
		return models.ImagePayload{}, fmt.Errorf("%w: data URL has no payload", ErrMalformedImage)
	}

	mimeType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return models.ImagePayload{}, fmt.Errorf("%w: data URL must be base64 encoded", ErrMalformedImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("%w: invalid base64: %v", ErrMalformedImage, err)
	}

	return FromBytes(data, mimeType)
}

// FromBytes validates raw image bytes. An empty or generic content type is
// replaced by one sniffed from the data.
func FromBytes(data []byte, contentType string) (models.ImagePayload, error) {
	if len(data) == 0 {
		return models.ImagePayload{}, fmt.Errorf("%w: no image data", ErrMalformedImage)
	}

	sniffed := http.DetectContentType(data)
	contentType = normalizeContentType(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffed
	}

	if !strings.HasPrefix(contentType, "image/") {
		return models.ImagePayload{}, fmt.Errorf("%w: unsupported content type %s", ErrMalformedImage, contentType)
	}

	switch sniffed {
	case "image/png", "image/jpeg", "image/gif":
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return models.ImagePayload{}, fmt.Errorf("%w: %v", ErrMalformedImage, err)
		}
	default:
		if !strings.HasPrefix(sniffed, "image/") {
			return models.ImagePayload{}, fmt.Errorf("%w: data is not an image (%s)", ErrMalformedImage, sniffed)
		}
	}

	return models.ImagePayload{
		Data:        data,
		ContentType: contentType,
	}, nil
}

// Dimensions returns the pixel size of a payload in a format the standard decoders understand
func Dimensions(img models.ImagePayload) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// DataURL encodes a payload as a base64 data URL
func DataURL(img models.ImagePayload) string {
	return "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func normalizeContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}
