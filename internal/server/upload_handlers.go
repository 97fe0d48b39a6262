package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var partIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// uploadHandler stores a file under data_dir/<part_id>/<uuid>-<name> with a
// JSON sidecar describing it.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.dataDir == "" {
		s.writeErrorResponse(w, "uploads are disabled", http.StatusServiceUnavailable)
		return
	}
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	partID := r.FormValue("part_id")
	if !partIDPattern.MatchString(partID) {
		s.writeErrorResponse(w, "invalid or missing part_id", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorResponse(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	meta := UploadMetadata{
		ID:         uuid.NewString(),
		PartID:     partID,
		FileName:   filepath.Base(header.Filename),
		MimeType:   header.Header.Get("Content-Type"),
		Tags:       parseTags(r.MultipartForm.Value["tags"]),
		UploadedAt: time.Now().UTC(),
	}
	meta.StoredAs = meta.ID + "-" + meta.FileName

	dir := filepath.Join(s.dataDir, partID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		s.writeError(w, fmt.Errorf("create upload dir: %w", err))
		return
	}
	size, err := storeUpload(dir, &meta, file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	uploadSizeBytes.Observe(float64(size))
	uploadsTotal.Inc()
	s.logger.Info("Stored upload", "part_id", partID, "file", meta.FileName, "id", meta.ID, "size", size)
	s.writeJSON(w, http.StatusCreated, UploadResponse{Success: true, File: meta})
}

// storeUpload writes the data file and its JSON sidecar into dir. Nothing is
// left behind when either write fails.
func storeUpload(dir string, meta *UploadMetadata, src io.Reader) (int64, error) {
	dataPath := filepath.Join(dir, meta.StoredAs)
	size, err := writeFile(dataPath, src)
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			_ = os.Remove(dataPath)
		}
		return 0, fmt.Errorf("store upload: %w", err)
	}
	meta.Size = size

	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = os.WriteFile(dataPath+".json", sidecar, 0o600)
	}
	if err != nil {
		_ = os.Remove(dataPath)
		return 0, fmt.Errorf("store upload metadata: %w", err)
	}
	return size, nil
}

func writeFile(path string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // G304: path built from a uuid
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// parseTags accepts repeated fields and comma-separated lists.
func parseTags(values []string) []string {
	tags := []string{}
	seen := map[string]struct{}{}
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}
