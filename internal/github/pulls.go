package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v80/github"

	"folio/api/internal/hosting"
)

func (g *Gateway) CreatePullRequest(ctx context.Context, input hosting.PullRequestInput) (hosting.PullRequest, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return hosting.PullRequest{}, fmt.Errorf("rate limit wait: %w", err)
	}

	pr, resp, err := g.gh.PullRequests.Create(ctx, g.owner, g.repo, &gh.NewPullRequest{
		Title: gh.Ptr(input.Title),
		Head:  gh.Ptr(input.Head),
		Base:  gh.Ptr(input.Base),
		Body:  gh.Ptr(input.Body),
		Draft: gh.Ptr(input.Draft),
	})
	g.track(resp)
	if err != nil {
		return hosting.PullRequest{}, g.wrapError(err, "create pull request")
	}
	return toPullRequest(pr), nil
}

// FindOpenPullRequest returns the first open pull request whose head is
// owner:head, or nil.
func (g *Gateway) FindOpenPullRequest(ctx context.Context, head string) (*hosting.PullRequest, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	prs, resp, err := g.gh.PullRequests.List(ctx, g.owner, g.repo, &gh.PullRequestListOptions{
		State:       "open",
		Head:        g.owner + ":" + head,
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	g.track(resp)
	if err != nil {
		return nil, g.wrapError(err, "list pull requests")
	}
	if len(prs) == 0 {
		return nil, nil
	}
	pr := toPullRequest(prs[0])
	return &pr, nil
}

func toPullRequest(pr *gh.PullRequest) hosting.PullRequest {
	return hosting.PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		Title:  pr.GetTitle(),
		State:  pr.GetState(),
		Head:   pr.GetHead().GetRef(),
		Base:   pr.GetBase().GetRef(),
	}
}
