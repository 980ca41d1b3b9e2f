package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwood/driftwood/internal/testutil"
)

// fakeQBittorrent emulates enough of the Web API v2 for the client tests.
type fakeQBittorrent struct {
	mu       sync.Mutex
	loggedIn bool
	logins   int
	added    []url.Values
	torrents string // JSON payload for /torrents/info
}

func newFakeServer(t *testing.T, fake *fakeQBittorrent) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.logins++
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" {
			fmt.Fprint(w, "Fails.")
			return
		}
		fake.loggedIn = true
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc"})
		fmt.Fprint(w, "Ok.")
	})

	mux.HandleFunc("/api/v2/torrents/add", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		if !fake.loggedIn {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		r.ParseForm()
		fake.added = append(fake.added, r.PostForm)
		fmt.Fprint(w, "Ok.")
	})

	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		if !fake.loggedIn {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, fake.torrents)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *QBittorrent {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	var port int
	fmt.Sscanf(u.Port(), "%d", &port)

	client, err := NewQBittorrent(QBittorrentConfig{
		Host:     u.Hostname(),
		Port:     port,
		Username: "admin",
		Password: "secret",
		Category: "driftwood",
		Logger:   testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return client
}

func TestNewQBittorrentRequiresHost(t *testing.T) {
	_, err := NewQBittorrent(QBittorrentConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFetchAddsTaggedTorrent(t *testing.T) {
	fake := &fakeQBittorrent{torrents: "[]"}
	client := newTestClient(t, newFakeServer(t, fake))

	jobID, err := client.Fetch(context.Background(), "magnet:?xt=urn:btih:abc", "Some.Movie.2023.1080p")
	require.NoError(t, err)

	_, err = uuid.Parse(jobID)
	assert.NoError(t, err, "job handle must be a UUID")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.added, 1)
	form := fake.added[0]
	assert.Equal(t, "magnet:?xt=urn:btih:abc", form.Get("urls"))
	assert.Equal(t, "driftwood", form.Get("category"))
	assert.Equal(t, jobID, form.Get("tags"))
	assert.Equal(t, "Some.Movie.2023.1080p", form.Get("rename"))
}

func TestFetchBadCredentials(t *testing.T) {
	fake := &fakeQBittorrent{torrents: "[]"}
	server := newFakeServer(t, fake)

	u, _ := url.Parse(server.URL)
	var port int
	fmt.Sscanf(u.Port(), "%d", &port)

	client, err := NewQBittorrent(QBittorrentConfig{
		Host:     u.Hostname(),
		Port:     port,
		Username: "admin",
		Password: "wrong",
		Logger:   testutil.NewTestLogger(t),
	})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "magnet:?xt=urn:btih:abc", "x")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestListActiveMapsStatesAndTags(t *testing.T) {
	jobA := uuid.NewString()
	jobB := uuid.NewString()
	jobE := uuid.NewString()
	fake := &fakeQBittorrent{torrents: fmt.Sprintf(`[
		{"name":"A","state":"downloading","progress":0.4,"save_path":"/dl","tags":"%s"},
		{"name":"B","state":"stalledUP","progress":1.0,"save_path":"/dl","tags":"other, %s"},
		{"name":"C","state":"error","progress":0.1,"save_path":"/dl","tags":"manual"},
		{"name":"D","state":"queuedDL","progress":0,"save_path":"/dl","tags":""},
		{"name":"E","state":"missingFiles","progress":0.9,"save_path":"/dl","tags":"%s"}
	]`, jobA, jobB, jobE)}
	client := newTestClient(t, newFakeServer(t, fake))

	items, err := client.ListActive(context.Background())
	require.NoError(t, err)

	// C and D carry no job tag: not ours.
	require.Len(t, items, 3)

	byJob := map[string]DownloadItem{}
	for _, item := range items {
		byJob[item.JobID] = item
	}

	a := byJob[jobA]
	assert.Equal(t, StatusDownloading, a.Status)
	assert.InDelta(t, 0.4, a.Progress, 0.001)
	assert.Empty(t, a.Message)

	b := byJob[jobB]
	assert.Equal(t, StatusCompleted, b.Status)
	assert.Equal(t, "B", b.Title)

	// Errored torrents carry the raw state so the failure record says why.
	e := byJob[jobE]
	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, "client reported state missingFiles", e.Message)
}

func TestMapState(t *testing.T) {
	cases := map[string]Status{
		"error":        StatusError,
		"missingFiles": StatusError,
		"uploading":    StatusCompleted,
		"pausedUP":     StatusCompleted,
		"queuedDL":     StatusQueued,
		"allocating":   StatusQueued,
		"downloading":  StatusDownloading,
		"metaDL":       StatusDownloading,
		"stalledDL":    StatusDownloading,
	}
	for state, want := range cases {
		if got := mapState(state); got != want {
			t.Errorf("mapState(%q) = %q, want %q", state, got, want)
		}
	}
}

func TestReloginAfterSessionExpiry(t *testing.T) {
	fake := &fakeQBittorrent{torrents: "[]"}
	client := newTestClient(t, newFakeServer(t, fake))

	// First call logs in and adds.
	_, err := client.Fetch(context.Background(), "magnet:?xt=urn:btih:a", "x")
	require.NoError(t, err)

	// Simulate the server dropping the session.
	fake.mu.Lock()
	fake.loggedIn = false
	fake.mu.Unlock()

	_, err = client.Fetch(context.Background(), "magnet:?xt=urn:btih:b", "y")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.GreaterOrEqual(t, fake.logins, 2, "client must re-login after a 403")
	assert.Len(t, fake.added, 2)
}
