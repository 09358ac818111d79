package app

import (
	"io"
	"net/http"
	"strings"
)

// handleGitHub serves the content proxy under /api/github. The session has
// already been checked.
func (s *HTTPServer) handleGitHub(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	query := r.URL.Query()

	switch {
	case parts[2] == "branches" && len(parts) == 3 && r.Method == http.MethodGet:
		branches, err := s.service.ListBranches(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"branches": branches})

	case parts[2] == "create-branch" && len(parts) == 3 && r.Method == http.MethodPost:
		var body struct {
			BranchName string `json:"branchName"`
			FromBranch string `json:"fromBranch"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		branch, err := s.service.CreateBranch(r.Context(), body.BranchName, body.FromBranch)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"branch": branch})

	case parts[2] == "files" && len(parts) == 3 && r.Method == http.MethodGet:
		files, err := s.service.ListPosts(r.Context(), query.Get("branch"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files})

	case parts[2] == "file" && r.Method == http.MethodGet:
		filePath := strings.Join(parts[3:], "/")
		if filePath == "" {
			filePath = query.Get("path")
		}
		file, err := s.service.GetFile(r.Context(), filePath, query.Get("branch"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, file)

	case parts[2] == "commit" && len(parts) == 3 && r.Method == http.MethodPost:
		var body CommitInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		commit, err := s.service.CommitPost(r.Context(), body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "commit": commit})

	case parts[2] == "pr-status" && len(parts) == 3 && r.Method == http.MethodGet:
		pr, err := s.service.PullRequestStatus(r.Context(), query.Get("branch"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hasPR": pr != nil, "pullRequest": pr})

	case parts[2] == "create-pr" && len(parts) == 3 && r.Method == http.MethodPost:
		var body PullRequestRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		pr, err := s.service.CreatePullRequest(r.Context(), body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "pullRequest": pr})

	case parts[2] == "upload-image" && len(parts) == 3 && r.Method == http.MethodPost:
		s.handleUploadImage(w, r)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+(1<<20))
	if err := r.ParseMultipartForm(maxImageSize + (1 << 20)); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields: file, slug", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
		return
	}

	image, err := s.service.UploadImage(r.Context(), UploadImageInput{
		Slug:        r.FormValue("slug"),
		Branch:      r.FormValue("branch"),
		Message:     r.FormValue("message"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"path":      image.Path,
		"repoPath":  image.RepoPath,
		"filename":  image.Filename,
		"sha":       image.SHA,
		"commitSha": image.CommitSHA,
	})
}
