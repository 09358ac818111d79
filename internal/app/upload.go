package app

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"folio/api/internal/frontmatter"
	"folio/api/internal/hosting"
)

const maxImageSize = 2 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

type UploadImageInput struct {
	Slug        string
	Branch      string
	Message     string
	Filename    string
	ContentType string
	Data        []byte
}

// UploadedImage describes a committed image. Path is relative to the
// content directory, ready to paste into a post body.
type UploadedImage struct {
	Path      string `json:"path"`
	RepoPath  string `json:"repoPath"`
	Filename  string `json:"filename"`
	SHA       string `json:"sha"`
	CommitSHA string `json:"commitSha"`
}

// UploadImage commits an image under <imageDir>/<slug>/ with a
// timestamped, sanitised file name.
func (s *Service) UploadImage(ctx context.Context, input UploadImageInput) (UploadedImage, error) {
	slug := strings.TrimSpace(input.Slug)
	if slug == "" || !frontmatter.ValidSlug(slug) {
		return UploadedImage{}, validationError("slug is required and may only contain letters, digits, '.', '_' and '-'")
	}
	if len(input.Data) == 0 {
		return UploadedImage{}, validationError("file is required")
	}
	if len(input.Data) > maxImageSize {
		return UploadedImage{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("File too large. Maximum size is %dMB", maxImageSize>>20),
			map[string]any{"maxSize": maxImageSize})
	}
	contentType := imageContentType(input.ContentType, input.Data)
	if !allowedImageTypes[contentType] {
		return UploadedImage{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"Invalid file type. Allowed types: JPG, PNG, WEBP, GIF",
			map[string]any{"allowedTypes": sortedImageTypes()})
	}

	branch := s.branchOrBase(input.Branch)
	if s.drafts.IsProtected(branch) {
		return UploadedImage{}, validationError(fmt.Sprintf("branch %q is protected; upload to a working branch", branch))
	}

	filename := fmt.Sprintf("%s-%d-%s", slug, s.now().UnixMilli(), sanitizeFilename(input.Filename))
	repoPath := path.Join(s.cfg.ImageDir, slug, filename)
	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = "Add blog image"
	}

	commit, err := s.gateway.PutFile(ctx, hosting.PutFileInput{
		Path:    repoPath,
		Branch:  branch,
		Message: message,
		Content: input.Data,
	})
	if err != nil {
		return UploadedImage{}, err
	}
	return UploadedImage{
		Path:      relativeImagePath(s.cfg.ContentDir, repoPath),
		RepoPath:  repoPath,
		Filename:  filename,
		SHA:       commit.SHA,
		CommitSHA: commit.CommitSHA,
	}, nil
}

// imageContentType trusts the declared type when it parses and sniffs the
// bytes otherwise.
func imageContentType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return strings.ToLower(mediaType)
	}
	return http.DetectContentType(data)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	return unsafeFilenameChars.ReplaceAllString(name, "-")
}

func relativeImagePath(contentDir, repoPath string) string {
	rel, err := filepath.Rel(filepath.FromSlash(contentDir), filepath.FromSlash(repoPath))
	if err != nil {
		return repoPath
	}
	return filepath.ToSlash(rel)
}

func sortedImageTypes() []string {
	return []string{"image/gif", "image/jpeg", "image/jpg", "image/png", "image/webp"}
}
