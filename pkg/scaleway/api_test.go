package scaleway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/scaleway/scaleway-sdk-go/scw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessKey = "SCWABCDEFGHIJKLMNOPQ"
	testSecretKey = "8b1f4c39-2d6e-4a0f-9c3b-5e7d1a2f6b80"
)

var testCreds = Credentials{AccessKey: testAccessKey, SecretKey: testSecretKey, ProjectID: "proj-1"}

type apiCall struct {
	Method      string
	Path        string
	Query       string
	ContentType string
	Body        string
}

// fakeScaleway records calls and answers from a route table keyed by
// "METHOD /path"
type fakeScaleway struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []apiCall
	routes map[string]func(w http.ResponseWriter)
}

func newFakeScaleway(t *testing.T) (*fakeScaleway, *httptest.Server) {
	f := &fakeScaleway{t: t, routes: map[string]func(http.ResponseWriter){}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeScaleway) on(route string, status int, body string) {
	f.routes[route] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeScaleway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, testSecretKey, r.Header.Get("X-Auth-Token"))
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	})
	handler, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "{}")
		return
	}
	handler(w)
}

func (f *fakeScaleway) routesCalled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Method+" "+c.Path)
	}
	return out
}

func (f *fakeScaleway) call(route string) apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Method+" "+c.Path == route {
			return c
		}
	}
	f.t.Fatalf("no call to %s", route)
	return apiCall{}
}

func (f *fakeScaleway) jsonBody(route string) map[string]any {
	var body map[string]any
	require.NoError(f.t, json.Unmarshal([]byte(f.call(route).Body), &body))
	return body
}

func testAPI(t *testing.T, srv *httptest.Server) *APIClient {
	c, err := NewAPIClient(testCreds, WithAPIURL(srv.URL), WithZone("nl-ams-1"), WithAPIRetry(3, time.Millisecond))
	require.NoError(t, err)
	return c
}

// serveUbuntuImage answers the marketplace lookup of the default image label
func serveUbuntuImage(f *fakeScaleway) {
	f.on("GET /marketplace/v2/local-images", http.StatusOK, `{"local_images":[{
		"id":"4fa8e2b0-7a43-4c1e-8d5b-2f9c1e3a6d70","label":"ubuntu_jammy","zone":"nl-ams-1",
		"arch":"x86_64","type":"instance_local","compatible_commercial_types":["DEV1-S"]}],"total_count":1}`)
}

func TestAPIClient_CreateServer(t *testing.T) {
	f, srv := newFakeScaleway(t)
	serveUbuntuImage(f)
	f.on("POST /instance/v1/zones/nl-ams-1/servers", http.StatusCreated, `{"server":{"id":"srv-1","name":"app-server","state":"stopped"}}`)

	spec := DefaultServerSpec("proj-1")
	spec.PublicIP = "ip-1"
	server, err := testAPI(t, srv).CreateServer(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", server.ID)
	assert.Equal(t, "stopped", server.State)

	body := f.jsonBody("POST /instance/v1/zones/nl-ams-1/servers")
	assert.Equal(t, "app-server", body["name"])
	assert.Equal(t, "proj-1", body["project"])
	assert.Equal(t, "DEV1-S", body["commercial_type"])
	assert.Equal(t, false, body["enable_ipv6"])
	assert.Equal(t, "local", body["boot_type"])
	assert.Equal(t, "ip-1", body["public_ip"])
	assert.Equal(t, []any{"managed-by:claude", "compliance:soc2-iso27001"}, body["tags"])
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	f, srv := newFakeScaleway(t)
	attempts := 0
	f.routes["GET /instance/v1/zones/nl-ams-1/servers"] = func(w http.ResponseWriter) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"message":"upstream unavailable"}`)
			return
		}
		_, _ = io.WriteString(w, `{"servers":[{"id":"a","name":"app-server","state":"running"}],"total_count":1}`)
	}

	servers, err := testAPI(t, srv).ListServers(context.Background(), "proj 1")
	require.NoError(t, err)
	assert.Equal(t, []Server{{ID: "a", Name: "app-server", State: "running"}}, servers)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, f.call("GET /instance/v1/zones/nl-ams-1/servers").Query, "project=proj+1")
}

func TestAPIClient_ClientErrorsAreNotRetried(t *testing.T) {
	f, srv := newFakeScaleway(t)
	f.on("POST /instance/v1/zones/nl-ams-1/ips", http.StatusForbidden, `{"message":"quota exceeded"}`)

	_, err := testAPI(t, srv).CreateIP(context.Background(), "proj-1")
	require.Error(t, err)
	var respErr *scw.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusForbidden, respErr.StatusCode)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, f.routesCalled(), 1)
}

func TestAPIClient_CreateIP(t *testing.T) {
	f, srv := newFakeScaleway(t)
	f.on("POST /instance/v1/zones/nl-ams-1/ips", http.StatusCreated, `{"ip":{"id":"ip-1","address":"51.15.9.9"}}`)

	ip, err := testAPI(t, srv).CreateIP(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, &IP{ID: "ip-1", Address: "51.15.9.9"}, ip)
	assert.Equal(t, "proj-1", f.jsonBody("POST /instance/v1/zones/nl-ams-1/ips")["project"])
}

func TestAPIClient_CloudInitIsPlainText(t *testing.T) {
	f, srv := newFakeScaleway(t)
	require.NoError(t, testAPI(t, srv).SetCloudInit(context.Background(), "srv-1", "#cloud-config\n"))

	c := f.call("PATCH /instance/v1/zones/nl-ams-1/servers/srv-1/user_data/cloud-init")
	assert.Equal(t, "text/plain", c.ContentType)
	assert.Equal(t, "#cloud-config\n", c.Body)
}

func TestAPIClient_Defaults(t *testing.T) {
	c, err := NewAPIClient(testCreds, WithAPIURL(""), WithZone(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultZone, c.Zone())
}

func TestAPIClient_InvalidZone(t *testing.T) {
	_, err := NewAPIClient(testCreds, WithZone("mars"))
	assert.ErrorContains(t, err, `invalid zone "mars"`)
}
