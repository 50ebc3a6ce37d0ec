package action

import (
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/cmllr/CameraObscura/internal/eventlog"
)

// catchFileMaxMemory bounds how much of a multipart body is buffered in
// memory before spilling to temp files.
const catchFileMaxMemory = 32 << 20

// CatchFile stores every uploaded file field under the configured download
// directory and writes one plaintext report per request. Its value is the
// side effect; requests pass through to the next action.
type CatchFile struct{}

// Run implements Action.
func (a *CatchFile) Run(ctx *Context) (Result, error) {
	if err := ctx.R.ParseMultipartForm(catchFileMaxMemory); err != nil {
		// Not a file upload; nothing to catch.
		return Continue, nil
	}
	form := ctx.R.MultipartForm
	if form == nil || len(form.File) == 0 {
		return Continue, nil
	}

	report := ""
	stored := 0
	for field, headers := range form.File {
		for _, header := range headers {
			if header == nil || header.Filename == "" && header.Size == 0 {
				ctx.Error(http.StatusNotFound)
				return Terminated, nil
			}

			downloadDir := ctx.Store.String("honeypot", "downloadDir")
			if downloadDir == "" {
				ctx.Error(http.StatusNotFound)
				return Terminated, nil
			}
			absoluteDir := ctx.Store.Absolute(downloadDir)
			if info, err := os.Stat(absoluteDir); err != nil || !info.IsDir() {
				ctx.Error(http.StatusNotFound)
				return Terminated, nil
			}

			storedName := fmt.Sprintf("%s_%s", ctx.Token, field)
			storedPath := filepath.Join(absoluteDir, storedName)
			if err := saveUpload(header, storedPath); err != nil {
				return Continue, fmt.Errorf("catchfile: %w", err)
			}
			stored++

			report += fmt.Sprintf("Filename: %s\nStored filename: %s\nSize: %d\nType: %s\n\n",
				norm.NFC.String(header.Filename), storedName, header.Size,
				header.Header.Get("Content-Type"))

			_, statErr := os.Stat(storedPath)
			ctx.Events.Log(eventlog.EventUpload,
				fmt.Sprintf("Uploaded file with report report_%s.txt", ctx.Token),
				statErr != nil, requestHost(ctx.R), nil)
		}
	}

	if stored > 0 {
		downloadDir := ctx.Store.Absolute(ctx.Store.String("honeypot", "downloadDir"))
		reportPath := filepath.Join(downloadDir, fmt.Sprintf("report_%s.txt", ctx.Token))
		if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
			return Continue, fmt.Errorf("catchfile: write report: %w", err)
		}
	}
	return Continue, nil
}

func saveUpload(header *multipart.FileHeader, path string) error {
	source, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer source.Close()

	target, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	defer target.Close()
	if _, err := io.Copy(target, source); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	return nil
}

func requestHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
