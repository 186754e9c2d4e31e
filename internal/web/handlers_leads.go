package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/leadintake/internal/core"
	"github.com/JonMunkholm/leadintake/internal/partner"
)

// =============================================================================
// Single leads
// =============================================================================

// handleCreateLead validates one lead and stores it.
func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	lead, err := s.service.CreateLead(r.Context(), rec)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, lead)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	lead, err := s.service.GetLead(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, lead)
}

// handleUpdateLead replaces a lead with a newly validated body.
func (s *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	rec, err := decodeRecord(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	lead, err := s.service.UpdateLead(r.Context(), id, rec)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, lead)
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteLead(r.Context(), id); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListLeads returns a page of leads as JSON, or with ?export=<ext>
// every matching lead as a file download.
func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("export") != "" {
		ext, err := parseExtParam(r, "export")
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		file, err := s.service.ExportLeads(r.Context(), filter, ext)
		if err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		sendFile(w, r, file)
		return
	}

	page, err := s.service.ListLeads(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

// =============================================================================
// Files
// =============================================================================

// handleIngestFile stores every lead in an uploaded file, or none of them.
func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	if maxSize <= 0 {
		maxSize = 100 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if !contentTypeIs(r, "multipart/form-data") {
		s.respondError(w, r, newBadRequest("no file provided", nil), http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, fmt.Errorf("file too large: %w", err), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, newBadRequest("invalid multipart form", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, newBadRequest("no file provided", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Reject unknown formats before reading the content.
	if _, err := core.ParseExt(header.Filename); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	opts := core.IngestOptions{Encoding: r.FormValue("encoding")}
	if d := r.FormValue("delimiter"); d != "" {
		runes := []rune(d)
		if len(runes) != 1 {
			s.respondError(w, r, newBadRequest("delimiter must be a single character", nil), http.StatusBadRequest)
			return
		}
		opts.Delimiter = runes[0]
	}
	if r.URL.Query().Has("meta__is_test") {
		isTest, err := parseBoolParam(r, "meta__is_test", true)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		opts.IsTest = &isTest
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusInternalServerError)
		return
	}

	result, err := s.service.IngestFile(r.Context(), header.Filename, data, opts)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// handleTemplate returns an empty lead file, or one with an example row.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	ext, err := parseExtParam(r, "ext")
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	exampleRow, err := parseBoolParam(r, "example_row", false)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	file, err := s.service.Template(r.Context(), ext, exampleRow)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	sendFile(w, r, file)
}

// =============================================================================
// Partners
// =============================================================================

// handleSendLead posts a short lead to UNICORE and relays its answer.
func (s *Server) handleSendLead(w http.ResponseWriter, r *http.Request) {
	var lead partner.SendLead
	if err := decodeJSON(w, r, &lead); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	result, err := s.service.SendToPartner(r.Context(), lead)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSONStatus(w, result.StatusCode, result.Body())
}

// handleForwardLead validates a full lead, forwards it to LEADCRAFT and
// stores it once accepted. ?meta__is_test defaults to true.
func (s *Server) handleForwardLead(w http.ResponseWriter, r *http.Request) {
	isTest, err := parseBoolParam(r, "meta__is_test", true)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	rec, err := decodeRecord(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	result, err := s.service.ForwardLead(r.Context(), rec, isTest)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// contentTypeIs reports whether the request body has media type mt.
func contentTypeIs(r *http.Request, mt string) bool {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.EqualFold(strings.TrimSpace(ct), mt)
}
