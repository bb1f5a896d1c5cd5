package api

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/learnmate/internal/exam"
)

const maxUploadBytes = 50 << 20 // 50 MB

func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return false
	}
	return true
}

// safeName reduces an uploaded file name to a plain base name.
func safeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || base == ".." {
		return "upload"
	}
	return base
}

// stageFiles copies uploaded files into a fresh temp directory, keeping
// their extensions. cleanup removes the directory.
func stageFiles(headers []*multipart.FileHeader) ([]exam.BatchFile, func(), error) {
	dir, err := os.MkdirTemp("", "learnmate-exams-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	files := make([]exam.BatchFile, 0, len(headers))
	for i, fh := range headers {
		name := safeName(fh.Filename)
		dst := filepath.Join(dir, fmt.Sprintf("%03d_%s", i, name))
		if err := copyUpload(fh, dst); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("stage %s: %w", name, err)
		}
		files = append(files, exam.BatchFile{Name: name, Path: dst})
	}
	return files, cleanup, nil
}

func copyUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// originalName strips the unique prefix stored files carry.
func originalName(stored string) string {
	base := filepath.Base(stored)
	if i := strings.IndexByte(base, '_'); i == 36 {
		return base[i+1:]
	}
	return base
}

// ResourceFile handles GET /resources/{id}/file.
func (h *Handler) ResourceFile(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	res, rc, err := h.study.OpenResourceFile(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "resource file", err)
		return
	}
	defer rc.Close()

	name := originalName(res.FilePath)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, rs)
		return
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = io.Copy(w, rc)
}
