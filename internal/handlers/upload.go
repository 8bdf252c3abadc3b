package handlers

import (
	"errors"
	"net/http"

	"desacordo-backend/internal/uploads"
)

func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	// room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+1<<20)

	attachment, err := h.uploads.HandleUpload(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, uploads.ErrTooLarge), errors.As(err, &maxBytesErr):
			http.Error(w, "file_too_large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, uploads.ErrEmpty), errors.Is(err, http.ErrMissingFile):
			http.Error(w, "no_file", http.StatusBadRequest)
		default:
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	h.sugar.Debugf("User %s uploaded %s", userIDFrom(r.Context()), attachment.URL)
	h.writeJSON(w, http.StatusCreated, attachment)
}
