package kampusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/live"
	"github.com/victorpuello/kampus-sub004/core/novelty"
	"github.com/victorpuello/kampus-sub004/core/user"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conf := &core.Config{Kampus: core.KampusConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}}
	return NewClient(conf, nil), srv
}

func signedToken(t *testing.T, claims user.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func adminSession(t *testing.T) user.Session {
	sess, err := user.NewSession(signedToken(t, user.Claims{
		StandardClaims: jwt.StandardClaims{Subject: "1", ExpiresAt: time.Now().Add(time.Hour).Unix()},
		Username:       "rector",
		IsAdmin:        true,
		Roles:          []string{user.RoleAdminRector},
	}))
	require.NoError(t, err)
	return sess
}

func TestLogin(t *testing.T) {
	access := signedToken(t, user.Claims{
		StandardClaims: jwt.StandardClaims{Subject: "7", ExpiresAt: time.Now().Add(time.Hour).Unix()},
		Username:       "coordinator",
		Email:          "coord@kampus.edu.co",
		IsAdmin:        true,
		Roles:          []string{user.RoleAdminCoordinator},
	})

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "coordinator", creds["username"])

		_ = json.NewEncoder(w).Encode(map[string]string{"access": access, "refresh": "r1"})
	}))

	sess, err := client.Login(context.Background(), "coordinator", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "coordinator", sess.Username)
	assert.True(t, sess.IsAdmin)
	assert.False(t, sess.Expired())
	assert.Equal(t, sess, client.Session())
}

func TestLoginBadCredentials(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "No active account found with the given credentials"})
	}))

	_, err := client.Login(context.Background(), "coordinator", "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "No active account")
}

func TestFetchSnapshotQueryParams(t *testing.T) {
	sensitive, err := live.Preset(live.PresetSensitive)
	require.NoError(t, err)

	var gotFull, gotIncremental map[string][]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/processes/7/live-dashboard", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))

		if r.URL.Query().Get("since") == "" {
			gotFull = r.URL.Query()
		} else {
			gotIncremental = r.URL.Query()
		}
		_ = json.NewEncoder(w).Encode(live.Snapshot{
			GeneratedAt: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
			Cursor:      "c-1",
		})
	}))
	client.SetSession(adminSession(t))

	full, err := client.FetchSnapshot(context.Background(), 7, sensitive, live.FetchFull, "")
	require.NoError(t, err)
	assert.Equal(t, "c-1", full.Cursor)
	assert.Equal(t, "45", gotFull["windowMinutes"][0])
	assert.Equal(t, "0.2", gotFull["blankRateThreshold"][0])
	assert.Equal(t, "6", gotFull["inactivityMinutes"][0])
	assert.Equal(t, "6", gotFull["spikeThreshold"][0])
	assert.Equal(t, "90", gotFull["seriesLimit"][0])
	assert.Equal(t, "true", gotFull["includeRanking"][0])
	assert.NotContains(t, gotFull, "since")

	_, err = client.FetchSnapshot(context.Background(), 7, sensitive, live.FetchIncremental, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", gotIncremental["since"][0])
	assert.Equal(t, "false", gotIncremental["includeRanking"][0])
}

func TestFetchSnapshotErrorMapping(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "election service down"})
	}))

	_, err := client.FetchSnapshot(context.Background(), 7, live.MonitoringConfig{}, live.FetchFull, "")
	var fetchErr *live.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.Status)
	assert.Equal(t, "election service down", fetchErr.Detail)
}

func TestProcesses(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/processes", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]live.Process{
			{ID: 7, Name: "Eleccion Personero 2026", Status: live.ProcessStatusOpen},
			{ID: 6, Name: "Eleccion Contralor 2025", Status: "CLOSED"},
		})
	}))
	client.SetSession(adminSession(t))

	procs, err := client.Processes(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.True(t, procs[0].IsOpen())
	assert.False(t, procs[1].IsOpen())
}

func TestTokenRefreshAheadOfExpiry(t *testing.T) {
	fresh := signedToken(t, user.Claims{
		StandardClaims: jwt.StandardClaims{Subject: "1", ExpiresAt: time.Now().Add(time.Hour).Unix()},
		Username:       "rector",
	})
	expiring := signedToken(t, user.Claims{
		StandardClaims: jwt.StandardClaims{Subject: "1", ExpiresAt: time.Now().Add(5 * time.Second).Unix()},
		Username:       "rector",
	})

	var refreshed bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]string{"access": expiring, "refresh": "r1"})
		case "/auth/refresh":
			refreshed = true
			_ = json.NewEncoder(w).Encode(map[string]string{"access": fresh})
		case "/processes":
			assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode([]live.Process{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := client.Login(context.Background(), "rector", "pw")
	require.NoError(t, err)

	// the session expires within the refresh margin, so the next call refreshes first
	_, err = client.Processes(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshed)
}

func TestNoveltyEndpoints(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/novelties":
			var nc novelty.NewCase
			require.NoError(t, json.NewDecoder(r.Body).Decode(&nc))
			_ = json.NewEncoder(w).Encode(novelty.Case{ID: 12, ClientRef: nc.ClientRef, Status: novelty.StatusDraft})
		case "/novelties/12/attachments":
			require.NoError(t, r.ParseMultipartForm(1 << 20))
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			_ = json.NewEncoder(w).Encode(novelty.Attachment{ID: 1, Name: hdr.Filename})
		case "/novelties/12/file":
			_ = json.NewEncoder(w).Encode(novelty.Case{ID: 12, Status: novelty.StatusFiled})
		case "/novelties/12/resolve":
			var rev novelty.Review
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rev))
			assert.Equal(t, novelty.DecisionApprove, rev.Decision)
			_ = json.NewEncoder(w).Encode(novelty.Case{ID: 12, Status: novelty.StatusApproved})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	client.SetSession(adminSession(t))
	ctx := context.Background()

	c, err := client.CreateCase(ctx, novelty.NewCase{Type: novelty.TypeTransfer, StudentID: 42, Description: "transfer to afternoon shift"})
	require.NoError(t, err)
	assert.Equal(t, novelty.StatusDraft, c.Status)

	att, err := client.UploadAttachment(ctx, c.ID, "request.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "request.pdf", att.Name)

	filed, err := client.FileCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, novelty.StatusFiled, filed.Status)

	resolved, err := client.ResolveCase(ctx, c.ID, novelty.Review{Decision: novelty.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, novelty.StatusApproved, resolved.Status)
}

func TestUserEndpoints(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users" && r.Method == http.MethodGet:
			assert.Equal(t, "lorna", r.URL.Query().Get("search"))
			_ = json.NewEncoder(w).Encode([]user.User{{ID: 3, Username: "lorna"}})
		case r.URL.Path == "/users" && r.Method == http.MethodPost:
			var nu user.NewUser
			require.NoError(t, json.NewDecoder(r.Body).Decode(&nu))
			_ = json.NewEncoder(w).Encode(user.User{ID: 4, Username: nu.Username})
		case r.URL.Path == "/users/4" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	client.SetSession(adminSession(t))
	ctx := context.Background()

	users, err := client.Users(ctx, user.QueryFilter{Search: " lorna "})
	require.NoError(t, err)
	require.Len(t, users, 1)

	created, err := client.CreateUser(ctx, user.NewUser{Name: "Lorna Doe", Username: "lorna1", Password: "pw", PasswordConfirm: "pw"})
	require.NoError(t, err)
	assert.Equal(t, 4, created.ID)

	require.NoError(t, client.DeleteUser(ctx, 4))
}

func TestStreamDeliversSnapshots(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/processes/7/live-dashboard/stream", r.URL.Path)
		assert.Equal(t, "45", r.URL.Query().Get("windowMinutes"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		data, _ := json.Marshal(live.Snapshot{GeneratedAt: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)})
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
		flusher.Flush()
		// hold the stream open until the client goes away
		<-r.Context().Done()
	}))
	client.SetSession(adminSession(t))

	sensitive, _ := live.Preset(live.PresetSensitive)
	stream, err := client.OpenStream(context.Background(), 7, sensitive)
	require.NoError(t, err)
	defer stream.Close()

	select {
	case snap := <-stream.Snapshots():
		assert.Equal(t, 2026, snap.GeneratedAt.Year())
	case err := <-stream.Failures():
		t.Fatalf("unexpected stream failure: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for snapshot event")
	}
}

func TestStreamOutlivesFetchTimeout(t *testing.T) {
	send := make(chan time.Time, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for {
			select {
			case gen := <-send:
				data, _ := json.Marshal(live.Snapshot{GeneratedAt: gen})
				fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	// a timeout well below the stream's lifetime must only bound setup
	conf := &core.Config{Kampus: core.KampusConfig{BaseURL: srv.URL, Timeout: 150 * time.Millisecond}}
	client := NewClient(conf, nil)

	stream, err := client.OpenStream(context.Background(), 7, live.MonitoringConfig{WindowMinutes: 45})
	require.NoError(t, err)
	defer stream.Close()

	send <- time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	select {
	case snap := <-stream.Snapshots():
		assert.Equal(t, 2026, snap.GeneratedAt.Year())
	case err := <-stream.Failures():
		t.Fatalf("unexpected stream failure: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the first snapshot")
	}

	// idle past the REST timeout, then deliver again on the same stream
	time.Sleep(3 * conf.Kampus.Timeout)
	send <- time.Date(2026, 3, 10, 10, 1, 0, 0, time.UTC)
	select {
	case snap := <-stream.Snapshots():
		assert.Equal(t, 1, snap.GeneratedAt.Minute())
	case err := <-stream.Failures():
		t.Fatalf("stream torn down by the client's own timeout: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the second snapshot")
	}
}

func TestStreamFailureIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	conf := &core.Config{Kampus: core.KampusConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}}
	client := NewClient(conf, nil)

	stream, err := client.OpenStream(context.Background(), 7, live.MonitoringConfig{WindowMinutes: 45})
	require.NoError(t, err)
	defer stream.Close()

	select {
	case err := <-stream.Failures():
		var streamErr *live.StreamError
		assert.True(t, errors.As(err, &streamErr))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream failure")
	}
}
