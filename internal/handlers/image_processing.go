package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/tourguide/internal/images"
	"github.com/lehigh-university-libraries/tourguide/internal/models"
)

// readImage accepts a multipart upload ("file" or "files"), a JSON body with
// image_url or image_data (a data URL), or a raw image body.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) (models.ImagePayload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024*1024)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		return h.readJSONImage(r)
	case mediaType == "multipart/form-data":
		return h.readMultipartImage(r)
	case strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return models.ImagePayload{}, fmt.Errorf("failed to read body: %w", err)
		}
		return images.FromBytes(data, mediaType)
	default:
		return models.ImagePayload{}, fmt.Errorf("%w: unsupported request content type %q", images.ErrMalformedImage, mediaType)
	}
}

func (h *Handler) readJSONImage(r *http.Request) (models.ImagePayload, error) {
	var request struct {
		ImageURL  string `json:"image_url"`
		ImageData string `json:"image_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		return models.ImagePayload{}, fmt.Errorf("invalid JSON: %w", err)
	}

	switch {
	case request.ImageData != "":
		return images.FromDataURL(request.ImageData)
	case request.ImageURL != "":
		return h.fetcher.Load(r.Context(), request.ImageURL)
	default:
		return models.ImagePayload{}, errors.New("image_url or image_data is required")
	}
}

func (h *Handler) readMultipartImage(r *http.Request) (models.ImagePayload, error) {
	file, header, err := r.FormFile("files")
	if err != nil {
		file, header, err = r.FormFile("file")
		if err != nil {
			return models.ImagePayload{}, fmt.Errorf("failed to read file: %w", err)
		}
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("failed to read file contents: %w", err)
	}
	if int64(len(fileData)) > h.maxUploadBytes {
		return models.ImagePayload{}, fmt.Errorf("%w: file too large (max %d bytes)", images.ErrMalformedImage, h.maxUploadBytes)
	}

	return images.FromBytes(fileData, header.Header.Get("Content-Type"))
}
