package culler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/bmsync/internal/culler"
	"github.com/nikbrunner/bmsync/internal/model"
)

func bookmark(title, rawURL string) *model.Node {
	return &model.Node{UUID: model.GenerateUUID(), Title: title, URL: rawURL}
}

func TestCheck_ClassifiesResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/head-rejected":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	bookmarks := []*model.Node{
		bookmark("ok", srv.URL+"/ok"),
		bookmark("gone", srv.URL+"/gone"),
		bookmark("missing", srv.URL+"/missing"),
		bookmark("head", srv.URL+"/head-rejected"),
		bookmark("broken", srv.URL+"/broken"),
	}

	var progress atomic.Int32
	results := culler.Check(context.Background(), bookmarks, culler.Options{
		Concurrency: 2,
		OnProgress:  func(completed, total int) { progress.Add(1) },
	})

	assert.Equal(t, len(results), 5)
	assert.Equal(t, int(progress.Load()), 5)

	want := []culler.Status{culler.Healthy, culler.Dead, culler.Dead, culler.Healthy, culler.Unreachable}
	for i, r := range results {
		assert.Equal(t, r.UUID, bookmarks[i].UUID)
		assert.Equal(t, r.Status, want[i], "result %d (%s)", i, r.Title)
	}
	assert.Equal(t, results[4].Error, "Internal Server Error")
	assert.Equal(t, len(culler.DeadResults(results)), 2)
}

func TestCheck_ExcludedDomainIsNotDead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	assert.NilError(t, err)

	results := culler.Check(context.Background(), []*model.Node{bookmark("private", srv.URL+"/repo")}, culler.Options{
		ExcludeDomains: []string{u.Hostname()},
	})
	assert.Equal(t, results[0].Status, culler.Unreachable)
	assert.Equal(t, results[0].Error, "Possibly private (auth required)")
}

func TestCheck_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	results := culler.Check(context.Background(), []*model.Node{bookmark("down", addr)}, culler.Options{})
	assert.Equal(t, results[0].Status, culler.Unreachable)
	assert.Equal(t, results[0].StatusCode, 0)
}

func TestCheck_Empty(t *testing.T) {
	assert.Assert(t, culler.Check(context.Background(), nil, culler.Options{}) == nil)
}
