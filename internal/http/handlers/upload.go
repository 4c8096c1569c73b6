package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/damagegraph-backend/internal/platform/apierr"
)

const DefaultMaxUploadBytes int64 = 32 << 20

// readPart returns the named multipart file, or the raw request body when the request is not
// multipart and allowRaw is set. exts restricts accepted file names (lower case, with dot).
func readPart(c *gin.Context, field string, maxBytes int64, allowRaw bool, exts ...string) ([]byte, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile(field)
		if err != nil {
			return nil, "", uploadError(fmt.Errorf("missing %q file: %w", field, err))
		}
		if len(exts) > 0 && !hasExt(fh.Filename, exts) {
			return nil, "", apierr.BadRequest("unsupported_file_type",
				fmt.Errorf("%s: only %s files are allowed", fh.Filename, strings.Join(exts, ", ")))
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", uploadError(err)
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, "", uploadError(err)
		}
		return raw, fh.Filename, nil
	}

	if !allowRaw {
		return nil, "", apierr.BadRequest("invalid_upload", errors.New("expected a multipart form"))
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", uploadError(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, "", apierr.BadRequest("invalid_upload", errors.New("empty request body"))
	}
	return raw, "", nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.New(http.StatusRequestEntityTooLarge, "upload_too_large", err)
	}
	return apierr.BadRequest("invalid_upload", err)
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func source(c *gin.Context, filename string) string {
	if filename != "" {
		return filename
	}
	return "body:" + c.FullPath()
}
