package app

import (
	"net/http"

	"folio/api/internal/draft"
)

func (s *HTTPServer) handleDrafts(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()

	if len(parts) == 2 && r.Method == http.MethodPost {
		var body OpenDraftInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		d, err := s.service.OpenDraft(ctx, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"draft": d})
		return
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	id := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			d, err := s.service.GetDraft(id)
			writeDraft(w, d, err)
		case http.MethodPatch:
			var body EditDraftInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			d, err := s.service.EditDraft(id, body)
			writeDraft(w, d, err)
		case http.MethodDelete:
			if err := s.service.DiscardDraft(id); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 4 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[3] {
	case "target":
		var body struct {
			Branch string `json:"branch"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		d, err := s.service.SelectDraftTarget(ctx, id, body.Branch)
		writeDraft(w, d, err)
	case "save":
		d, err := s.service.SaveDraft(ctx, id)
		writeDraft(w, d, err)
	case "pr-status":
		d, err := s.service.CheckDraftPullRequest(ctx, id)
		writeDraft(w, d, err)
	case "pull-request":
		d, pr, err := s.service.CreateDraftPullRequest(ctx, id)
		if err != nil {
			writeDraft(w, d, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"draft": d, "pullRequest": pr})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// writeDraft writes the draft, or the mapped error with the draft's
// current snapshot attached so clients can show state and lastError.
func writeDraft(w http.ResponseWriter, d *draft.Draft, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"draft": d})
		return
	}
	status, code, message, details := mapError(err)
	if d != nil {
		merged := map[string]any{"draft": d}
		if fields, ok := details.(map[string]any); ok {
			for key, value := range fields {
				merged[key] = value
			}
		}
		details = merged
	}
	writeError(w, status, code, message, details)
}
