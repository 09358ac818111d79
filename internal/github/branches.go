package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v80/github"

	"folio/api/internal/hosting"
)

// ListBranches returns every branch of the repository. A branch counts as
// protected when GitHub says so or when it was configured as protected.
func (g *Gateway) ListBranches(ctx context.Context) ([]hosting.Branch, error) {
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	var branches []hosting.Branch

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := g.gh.Repositories.ListBranches(ctx, g.owner, g.repo, opts)
		g.track(resp)
		if err != nil {
			return nil, g.wrapError(err, "list branches")
		}

		for _, branch := range page {
			branches = append(branches, hosting.Branch{
				Name:      branch.GetName(),
				SHA:       branch.GetCommit().GetSHA(),
				Protected: branch.GetProtected() || g.protected.Has(branch.GetName()),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return branches, nil
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// CreateBranch creates name at the head of from. GitHub answers 422 when the
// ref exists, which surfaces as hosting.ErrConflict.
func (g *Gateway) CreateBranch(ctx context.Context, name, from string) (hosting.Branch, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return hosting.Branch{}, fmt.Errorf("rate limit wait: %w", err)
	}
	source, resp, err := g.gh.Git.GetRef(ctx, g.owner, g.repo, "heads/"+from)
	g.track(resp)
	if err != nil {
		return hosting.Branch{}, g.wrapError(err, "get source ref")
	}
	sha := source.GetObject().GetSHA()

	if err := g.limiter.Wait(ctx); err != nil {
		return hosting.Branch{}, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := g.gh.NewRequest(http.MethodPost, fmt.Sprintf("repos/%s/%s/git/refs", g.owner, g.repo), createRefRequest{
		Ref: "refs/heads/" + name,
		SHA: sha,
	})
	if err != nil {
		return hosting.Branch{}, fmt.Errorf("build create ref request: %w", err)
	}
	created := new(gh.Reference)
	resp, err = g.gh.Do(ctx, req, created)
	g.track(resp)
	if err != nil {
		return hosting.Branch{}, g.wrapError(err, "create ref")
	}

	if createdSHA := created.GetObject().GetSHA(); createdSHA != "" {
		sha = createdSHA
	}
	return hosting.Branch{Name: name, SHA: sha, Protected: g.protected.Has(name)}, nil
}
