package githubclient

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(
		WithToken("test-token"),
		WithMaxElapsed(time.Second),
	)
}

func TestOpenPullRequests(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET",
		"https://api.github.com/repos/hub-org/hub/pulls?state=open",
		httpmock.NewStringResponder(http.StatusOK, `[
			{"number": 12, "title": "hubsync: bump acme/anvils", "head": {"ref": "bump-acme-anvils"}},
			{"number": 13, "title": "unrelated PR", "head": {"ref": "feature"}}
		]`))

	client := newTestClient()
	prs, err := client.OpenPullRequests(context.Background(), "hub-org", "hub")
	require.NoError(t, err)
	require.Len(t, prs, 2)
	require.Equal(t, 12, prs[0].Number)
	require.Equal(t, "bump-acme-anvils", prs[0].Head.Ref)
}

func TestOpenPullRequestsNotFound(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET",
		"https://api.github.com/repos/hub-org/hub/pulls?state=open",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message": "Not Found"}`))

	client := newTestClient()
	_, err := client.OpenPullRequests(context.Background(), "hub-org", "hub")
	require.ErrorIs(t, err, ErrNotFound)
	// 404 is permanent, no retries
	require.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestCreatePullRequest(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var got NewPullRequest
	httpmock.RegisterResponder("POST",
		"https://api.github.com/repos/hub-org/hub/pulls",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(http.StatusCreated, `{"number": 42}`), nil
		})

	client := newTestClient()
	err := client.CreatePullRequest(context.Background(), "hub-org", "hub", NewPullRequest{
		Title:               "hubsync: bump acme/anvils",
		Head:                "bump-acme-anvils",
		Base:                "main",
		Body:                "Adds 1.0.0",
		MaintainerCanModify: true,
	})
	require.NoError(t, err)
	require.Equal(t, "bump-acme-anvils", got.Head)
	require.Equal(t, "main", got.Base)
}

func TestCreatePullRequestAlreadyExists(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST",
		"https://api.github.com/repos/hub-org/hub/pulls",
		httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"message": "Validation Failed"}`))

	client := newTestClient()
	err := client.CreatePullRequest(context.Background(), "hub-org", "hub", NewPullRequest{Head: "x"})
	require.ErrorIs(t, err, ErrPullRequestExists)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("GET",
		"https://api.github.com/repos/hub-org/hub/pulls?state=open",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusBadGateway, "down"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `[]`), nil
		})

	client := newTestClient()
	prs, err := client.OpenPullRequests(context.Background(), "hub-org", "hub")
	require.NoError(t, err)
	require.Empty(t, prs)
	require.Equal(t, 2, calls)
}
