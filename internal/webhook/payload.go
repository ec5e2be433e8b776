package webhook

// pullRequestPayload is the subset of a "pull_request" event payload the
// handler needs (spec §4.7 step 1).
type pullRequestPayload struct {
	Action     string `json:"action"`
	Repository struct {
		ID       int64  `json:"id"`
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest struct {
		Number int64 `json:"number"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

func (p *pullRequestPayload) valid() bool {
	return p.Repository.ID != 0 && p.PullRequest.Number != 0 && p.PullRequest.Head.SHA != ""
}
