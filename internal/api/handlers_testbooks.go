package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/testbook"
)

// maxTestbookBody caps JSON bodies on the testbook endpoints.
const maxTestbookBody = 10 << 20

type normalizeRequest struct {
	Feature document.Feature     `json:"feature"`
	Records []testbook.RawRecord `json:"records"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Feature.Name) == "" {
		jsonError(w, "feature.name is required", http.StatusBadRequest)
		return
	}

	batch := s.normalizer.NormalizeBatch(req.Records, req.Feature)
	tb := testbook.ForFeature(req.Feature, batch.Procedures)

	writeJSON(w, http.StatusOK, map[string]any{
		"procedures":   batch.Procedures,
		"decode_paths": batch.Paths,
		"dropped":      batch.Dropped,
		"testbook":     tb,
		"validation":   testbook.Validate(tb),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var tb testbook.Testbook
	if !decodeBody(w, r, &tb) {
		return
	}
	writeJSON(w, http.StatusOK, testbook.Validate(&tb))
}

// decodeBody reads a JSON body into v, keeping numbers as json.Number.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTestbookBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
