package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// errFileMissing is returned when neither a multipart file nor a body was sent
var errFileMissing = errors.New("no backup file in request")

func respondError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// uploadedBody returns the multipart field or, for any other content type, the raw body
func uploadedBody(c *gin.Context, field string) (io.ReadCloser, string, error) {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		header, err := c.FormFile(field)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, "", err
			}
			return nil, "", errFileMissing
		}
		f, err := header.Open()
		if err != nil {
			return nil, "", err
		}
		return f, header.Filename, nil
	}

	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil, "", errFileMissing
	}
	return c.Request.Body, "", nil
}

// bodyStatus maps request body failures to a status
func bodyStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
