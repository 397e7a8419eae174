package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"eventreg/persistence"
)

const restoreField = "database"

// HandleBackup handles GET /backup
func (h *Handlers) HandleBackup(w http.ResponseWriter, r *http.Request) {
	image, err := h.Registry.Backup(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", persistence.BackupFilename))
	w.Header().Set("Content-Length", strconv.Itoa(len(image)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(image); err != nil {
		h.Logger.Warn("backup download interrupted", "error", err)
	}
}

// HandleRestore handles POST /restore. The backup is taken from the
// "database" field of a multipart form, or from the raw request body.
func (h *Handlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	image, err := h.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, http.StatusRequestEntityTooLarge, "Backup file is too large")
			return
		}
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.Registry.Restore(r.Context(), image)
	if err != nil && !errors.Is(err, persistence.ErrSave) {
		h.handleError(w, err)
		return
	}
	h.sendResult(w, http.StatusOK, "restored_bytes", len(image), err)
}

func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxRestoreBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile(restoreField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("missing %q file field", restoreField)
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	image, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, errors.New("empty backup")
	}
	return image, nil
}

// HandleReset handles POST /reset
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	err := h.Registry.Reset(r.Context())
	if err != nil && !errors.Is(err, persistence.ErrSave) {
		h.handleError(w, err)
		return
	}
	h.sendResult(w, http.StatusOK, "reset", true, err)
}
