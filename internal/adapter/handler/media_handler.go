package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/media"
)

// MediaHandler compresses listing images before upload
type MediaHandler struct {
	defaults media.ImageOptions
}

// NewMediaHandler creates a media handler. Zero fields in defaults fall back to media.DefaultImageOptions.
func NewMediaHandler(defaults media.ImageOptions) *MediaHandler {
	base := media.DefaultImageOptions()
	if defaults.MaxBytes > 0 {
		base.MaxBytes = defaults.MaxBytes
	}
	if defaults.MaxDimension > 0 {
		base.MaxDimension = defaults.MaxDimension
	}
	if defaults.Quality > 0 {
		base.Quality = defaults.Quality
	}
	if defaults.Format != "" {
		base.Format = defaults.Format
	}
	if defaults.MaxPixels > 0 {
		base.MaxPixels = defaults.MaxPixels
	}
	return &MediaHandler{defaults: base}
}

// RegisterRoutes registers media routes
func (h *MediaHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/media/images/compress", h.CompressImage)
}

// CompressImage answers with the compressed image, or the original when compression did not help
func (h *MediaHandler) CompressImage(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, bodyStatus(err), fmt.Errorf("multipart field \"file\" is required"))
		return
	}

	opts, err := h.options(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, bodyStatus(err), err)
		return
	}

	result := media.CompressImage(c.Request.Context(), data, header.Filename, opts)
	if result.Err != nil {
		logger.Warn("Image compression fell back to original", map[string]interface{}{
			"filename": header.Filename,
			"error":    result.Err.Error(),
		})
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, result.Filename))
	c.Header("X-Original-Size", strconv.Itoa(result.OriginalSize))
	c.Header("X-Compressed-Size", strconv.Itoa(result.CompressedSize))
	c.Header("X-Compression-Fallback", strconv.FormatBool(result.Fallback))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func (h *MediaHandler) options(c *gin.Context) (media.ImageOptions, error) {
	opts := h.defaults

	ints := []struct {
		field string
		dst   *int
		min   int
		max   int
	}{
		{"maxBytes", &opts.MaxBytes, 1024, 64 << 20},
		{"maxDimension", &opts.MaxDimension, 16, 8192},
		{"quality", &opts.Quality, 1, 100},
	}
	for _, f := range ints {
		raw := c.PostForm(f.field)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < f.min || n > f.max {
			return opts, fmt.Errorf("%s must be between %d and %d", f.field, f.min, f.max)
		}
		*f.dst = n
	}

	switch format := c.PostForm("format"); format {
	case "":
	case "jpeg", "jpg":
		opts.Format = media.FormatJPEG
	case "png":
		opts.Format = media.FormatPNG
	default:
		return opts, fmt.Errorf("unsupported format %q", format)
	}

	return opts, nil
}
