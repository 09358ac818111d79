package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v80/github"

	"folio/api/internal/hosting"
)

// GetFile reads path at the head of branch.
func (g *Gateway) GetFile(ctx context.Context, path, branch string) (hosting.File, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return hosting.File{}, fmt.Errorf("rate limit wait: %w", err)
	}

	content, _, resp, err := g.gh.Repositories.GetContents(ctx, g.owner, g.repo, path, &gh.RepositoryContentGetOptions{Ref: branch})
	g.track(resp)
	if err != nil {
		return hosting.File{}, g.wrapError(err, "get contents")
	}
	if content == nil {
		return hosting.File{}, fmt.Errorf("%s: %w", path, hosting.ErrNotAFile)
	}

	decoded, err := content.GetContent()
	if err != nil {
		return hosting.File{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return hosting.File{
		Path:    content.GetPath(),
		Name:    content.GetName(),
		Content: decoded,
		SHA:     content.GetSHA(),
	}, nil
}

// ListFiles lists the regular files directly inside dir.
func (g *Gateway) ListFiles(ctx context.Context, dir, branch string) ([]hosting.FileEntry, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	file, entries, resp, err := g.gh.Repositories.GetContents(ctx, g.owner, g.repo, dir, &gh.RepositoryContentGetOptions{Ref: branch})
	g.track(resp)
	if err != nil {
		return nil, g.wrapError(err, "list contents")
	}
	if file != nil {
		return nil, fmt.Errorf("%s is a file: %w", dir, hosting.ErrNotFound)
	}

	files := make([]hosting.FileEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.GetType() != "file" {
			continue
		}
		files = append(files, hosting.FileEntry{
			Path: entry.GetPath(),
			Name: entry.GetName(),
			SHA:  entry.GetSHA(),
		})
	}
	return files, nil
}

// PutFile creates the file when input.SHA is empty and updates it otherwise.
// GitHub rejects a stale or missing SHA for an existing file; both come back
// as hosting.ErrConflict.
func (g *Gateway) PutFile(ctx context.Context, input hosting.PutFileInput) (hosting.FileCommit, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return hosting.FileCommit{}, fmt.Errorf("rate limit wait: %w", err)
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(input.Message),
		Content: input.Content,
		Branch:  gh.Ptr(input.Branch),
	}

	var (
		result *gh.RepositoryContentResponse
		resp   *gh.Response
		err    error
	)
	if input.SHA == "" {
		result, resp, err = g.gh.Repositories.CreateFile(ctx, g.owner, g.repo, input.Path, opts)
	} else {
		opts.SHA = gh.Ptr(input.SHA)
		result, resp, err = g.gh.Repositories.UpdateFile(ctx, g.owner, g.repo, input.Path, opts)
	}
	g.track(resp)
	if err != nil {
		return hosting.FileCommit{}, g.wrapError(err, "put contents")
	}
	if result == nil || result.Content == nil {
		return hosting.FileCommit{}, fmt.Errorf("put contents: empty response: %w", hosting.ErrUnavailable)
	}

	return hosting.FileCommit{
		Path:      result.Content.GetPath(),
		SHA:       result.Content.GetSHA(),
		CommitSHA: result.Commit.GetSHA(),
	}, nil
}
