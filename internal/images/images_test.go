package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFromBytes(t *testing.T) {
	pngData := testPNG(t)

	tests := []struct {
		name        string
		data        []byte
		contentType string
		wantType    string
		wantErr     bool
	}{
		{
			name:     "sniffs missing content type",
			data:     pngData,
			wantType: "image/png",
		},
		{
			name:        "replaces octet-stream",
			data:        pngData,
			contentType: "application/octet-stream",
			wantType:    "image/png",
		},
		{
			name:        "keeps declared image type",
			data:        pngData,
			contentType: "image/png; charset=binary",
			wantType:    "image/png",
		},
		{
			name:    "rejects empty data",
			data:    nil,
			wantErr: true,
		},
		{
			name:        "rejects text",
			data:        []byte("definitely not an image"),
			contentType: "text/plain",
			wantErr:     true,
		},
		{
			name:        "rejects text claiming to be an image",
			data:        []byte("definitely not an image"),
			contentType: "image/jpeg",
			wantErr:     true,
		},
		{
			name:    "rejects truncated png",
			data:    pngData[:12],
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FromBytes(tt.data, tt.contentType)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedImage) {
					t.Errorf("Expected ErrMalformedImage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if payload.ContentType != tt.wantType {
				t.Errorf("Expected content type %s, got %s", tt.wantType, payload.ContentType)
			}
		})
	}
}

func TestFromDataURL(t *testing.T) {
	pngData := testPNG(t)
	encoded := base64.StdEncoding.EncodeToString(pngData)

	payload, err := FromDataURL("data:image/png;base64," + encoded)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.Equal(payload.Data, pngData) {
		t.Error("Decoded data does not match input")
	}

	if DataURL(payload) != "data:image/png;base64,"+encoded {
		t.Error("DataURL did not reproduce the input")
	}

	for _, bad := range []string{
		"data:image/png;base64",
		"data:image/png," + encoded,
		"data:image/png;base64,!!!",
	} {
		if _, err := FromDataURL(bad); !errors.Is(err, ErrMalformedImage) {
			t.Errorf("Expected ErrMalformedImage for %q, got %v", bad, err)
		}
	}
}

func TestFetcherLoad(t *testing.T) {
	pngData := testPNG(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/eiffel.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngData)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, pngData, 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}

	f := NewFetcher()
	ctx := context.Background()

	if _, err := f.Load(ctx, server.URL+"/eiffel.png"); err != nil {
		t.Errorf("URL load failed: %v", err)
	}
	if _, err := f.Load(ctx, server.URL+"/missing.png"); err == nil {
		t.Error("Expected error for 404")
	}
	payload, err := f.Load(ctx, path)
	if err != nil {
		t.Fatalf("File load failed: %v", err)
	}

	w, h, err := Dimensions(payload)
	if err != nil || w != 4 || h != 3 {
		t.Errorf("Expected 4x3, got %dx%d (err %v)", w, h, err)
	}

	if _, err := f.Load(ctx, "  "); !errors.Is(err, ErrMalformedImage) {
		t.Errorf("Expected ErrMalformedImage for empty ref, got %v", err)
	}
}

func TestFetcherSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	if err := os.WriteFile(path, testPNG(t), 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}

	f := NewFetcher()
	f.MaxBytes = 10

	if _, err := f.Load(context.Background(), path); !errors.Is(err, ErrMalformedImage) {
		t.Errorf("Expected size limit error, got %v", err)
	}
}
