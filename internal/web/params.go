package web

// params.go holds request parsing shared by the lead handlers.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/JonMunkholm/leadintake/internal/core"
	"github.com/JonMunkholm/leadintake/internal/logging"
	"github.com/JonMunkholm/leadintake/internal/pathmap"
	"github.com/JonMunkholm/leadintake/internal/store"
)

// maxJSONBody caps single-lead request bodies.
const maxJSONBody = 1 << 20

// parseFilter builds a store filter from list query parameters. JSON-valued
// parameters (where, cursor, include, order) are passed through after a
// syntax check; the store interprets them.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	var f store.Filter

	for _, p := range []struct {
		name string
		dst  **int
	}{{"take", &f.Take}, {"skip", &f.Skip}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, &store.InvalidFilterError{Field: p.name, Reason: "must be a non-negative integer"}
		}
		*p.dst = &n
	}

	for _, p := range []struct {
		name string
		dst  *json.RawMessage
	}{{"where", &f.Where}, {"cursor", &f.Cursor}, {"include", &f.Include}, {"order", &f.Order}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		if !json.Valid([]byte(raw)) {
			return f, &store.InvalidFilterError{Field: p.name, Reason: "must be valid JSON"}
		}
		*p.dst = json.RawMessage(raw)
	}

	if raw := strings.TrimSpace(q.Get("distinct")); raw != "" {
		if strings.HasPrefix(raw, "[") {
			if err := json.Unmarshal([]byte(raw), &f.Distinct); err != nil {
				return f, &store.InvalidFilterError{Field: "distinct", Reason: "must be a list of field names"}
			}
		} else {
			for _, name := range strings.Split(raw, ",") {
				if name = strings.TrimSpace(name); name != "" {
					f.Distinct = append(f.Distinct, name)
				}
			}
		}
	}
	return f, nil
}

// parseBoolParam reads a boolean query parameter. Missing means def.
func parseBoolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, ok := core.ParseBool(raw)
	if !ok {
		return false, newBadRequest(fmt.Sprintf("%s must be true or false", name), nil)
	}
	return v, nil
}

// parseExtParam reads a file format parameter. Missing means csv.
func parseExtParam(r *http.Request, name string) (core.FileExt, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return core.ExtCSV, nil
	}
	return core.ParseExtName(raw)
}

// decodeRecord reads a JSON object body into a nested record, keeping the
// key order of the request.
func decodeRecord(w http.ResponseWriter, r *http.Request) (*pathmap.Record, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return nil, newBadRequest("could not read request body", err)
	}
	rec := pathmap.NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, newBadRequest("request body must be a JSON object", err)
	}
	return rec, nil
}

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return newBadRequest("invalid JSON body", err)
	}
	return nil
}

// sendFile streams an export file as an attachment and removes it.
func sendFile(w http.ResponseWriter, r *http.Request, file *core.ExportFile) {
	logger := logging.FromContext(r.Context())
	defer func() {
		if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("export file not removed", "path", file.Path, "error", err)
		}
	}()

	f, err := os.Open(file.Path)
	if err != nil {
		logger.Error("export file not readable", "path", file.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Error("export file stat failed", "path", file.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", file.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Name))
	http.ServeContent(w, r, file.Name, info.ModTime(), f)
}
