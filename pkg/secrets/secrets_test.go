package secrets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGHStore_List(t *testing.T) {
	r := osutil.NewFakeRunner().On("gh secret list", osutil.Result{Stdout: `[{"name":"DB_PASSWORD"},{"name":"JWT_SECRET"}]`})
	names, err := NewGHStore(r).List(context.Background(), "o/r")
	require.NoError(t, err)
	assert.Equal(t, []string{"DB_PASSWORD", "JWT_SECRET"}, names)
	assert.Equal(t, []string{"gh secret list --json name --repo o/r"}, r.Lines())
}

func TestGHStore_ListBadOutput(t *testing.T) {
	r := osutil.NewFakeRunner().On("gh secret list", osutil.Result{Stdout: "NAME UPDATED"})
	_, err := NewGHStore(r).List(context.Background(), "")
	assert.ErrorContains(t, err, "unexpected gh secret list output")
}

func TestGHStore_SetAndDelete(t *testing.T) {
	var value []byte
	r := osutil.NewFakeRunner().Do("gh secret set", func(c osutil.Command) {
		value, _ = io.ReadAll(c.Stdin)
	})
	s := NewGHStore(r)

	require.NoError(t, s.Set(context.Background(), "o/r", "SCW_SERVER_IP", "51.15.0.1"))
	require.NoError(t, s.Delete(context.Background(), "o/r", "SCW_SERVER_IP"))

	assert.Equal(t, "51.15.0.1", string(value))
	assert.Equal(t, []string{
		"gh secret set SCW_SERVER_IP --repo o/r",
		"gh secret delete SCW_SERVER_IP --repo o/r",
	}, r.Lines())
}

type staticLister []string

func (s staticLister) List(context.Context, string) ([]string, error) { return s, nil }

func TestCheck(t *testing.T) {
	report, err := Check(context.Background(), staticLister{"JWT_SECRET", "DB_PASSWORD", "EXTRA"}, "o/r",
		[]string{"DB_PASSWORD", "S3_BUCKET", "JWT_SECRET", "S3_ACCESS_KEY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"DB_PASSWORD", "JWT_SECRET"}, report.Present)
	assert.Equal(t, []string{"S3_ACCESS_KEY", "S3_BUCKET"}, report.Missing)
	assert.False(t, report.OK())

	report, err = Check(context.Background(), staticLister{"A"}, "o/r", []string{"A"})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Empty(t, report.Missing)
}

func newTestLister(t *testing.T, srv *httptest.Server) *APILister {
	t.Helper()
	l, err := NewAPILister(context.Background(), "tkn").WithBaseURL(srv.URL)
	require.NoError(t, err)
	return l
}

func TestAPILister_Paginates(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/actions/secrets", r.URL.Path)
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/actions/secrets?per_page=100&page=2>; rel="next"`, srv.URL))
			fmt.Fprint(w, `{"total_count":3,"secrets":[{"name":"A"},{"name":"B"}]}`)
		default:
			fmt.Fprint(w, `{"total_count":3,"secrets":[{"name":"C"}]}`)
		}
	}))
	defer srv.Close()

	names, err := newTestLister(t, srv).List(context.Background(), "o/r")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names)
}

func TestAPILister_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestLister(t, srv).List(context.Background(), "o/r")
	assert.ErrorContains(t, err, "403")
}

func TestAPILister_RequiresOwnerAndName(t *testing.T) {
	_, err := NewAPILister(context.Background(), "tkn").List(context.Background(), "just-a-name")
	assert.ErrorContains(t, err, "owner/name")
}

func TestRepoFromRemote(t *testing.T) {
	for url, want := range map[string]string{
		"git@github.com:claudine-dev/claudine.git":      "claudine-dev/claudine",
		"https://github.com/claudine-dev/claudine":      "claudine-dev/claudine",
		"https://github.com/claudine-dev/claudine.git\n": "claudine-dev/claudine",
		"ssh://git@github.com/o/r.git":                  "o/r",
	} {
		got, err := RepoFromRemote(url)
		require.NoError(t, err, url)
		assert.Equal(t, want, got, url)
	}

	_, err := RepoFromRemote("https://gitlab.com/o/r.git")
	assert.Error(t, err)
}

func TestOriginRepo(t *testing.T) {
	r := osutil.NewFakeRunner().On("git remote get-url origin", osutil.Result{Stdout: "git@github.com:o/r.git\n"})
	repo, err := OriginRepo(context.Background(), r, "/repo")
	require.NoError(t, err)
	assert.Equal(t, "o/r", repo)
}
