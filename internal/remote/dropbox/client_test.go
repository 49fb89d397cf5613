package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"mediasync/internal/remote"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Options{
		APIBase:      srv.URL,
		ContentBase:  srv.URL,
		AppKey:       "key",
		AppSecret:    "secret",
		AccessToken:  "tok-1",
		RefreshToken: "refresh-1",
	})
	return c, srv
}

func TestMakeRequestRetriesOnRateLimit(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))

	body, err := c.MakeRequest(context.Background(), "/files/get_metadata", map[string]any{"path": "/x"}, "")
	if err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if !bytes.Contains(body, []byte("ok")) {
		t.Errorf("unexpected body %s", body)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d; want 2", calls)
	}
}

func TestMakeRequestRefreshesExpiredToken(t *testing.T) {
	var saved string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("grant_type") != "refresh_token" || r.FormValue("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-2"})
	})
	mux.HandleFunc("/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"entries":[],"has_more":false}`))
	})

	c, _ := newTestClient(t, mux)
	c.saver = func(tok string) error { saved = tok; return nil }

	if _, err := c.MakeRequest(context.Background(), "/files/list_folder", map[string]any{"path": ""}, ""); err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if saved != "tok-2" {
		t.Errorf("saved token = %q; want tok-2", saved)
	}
}

func TestGetMetadataNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary":"path/not_found/..."}`))
	}))

	_, err := c.GetMetadata(context.Background(), "/missing")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("err = %v; want remote.ErrNotFound", err)
	}
}

func TestListFolderFollowsCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entries":[{".tag":"folder","name":"Photos","path_display":"/media/Photos"}],"cursor":"c1","has_more":true}`))
	})
	mux.HandleFunc("/files/list_folder/continue", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entries":[{".tag":"file","name":"cat.jpg","path_display":"/media/cat.jpg","server_modified":"2025-06-01T10:00:00Z","size":12}],"has_more":false}`))
	})

	c, _ := newTestClient(t, mux)
	entries, err := c.ListFolder(context.Background(), "/media")
	if err != nil {
		t.Fatalf("ListFolder: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d; want 2", len(entries))
	}
	if !entries[0].IsFolder() || entries[0].Name != "Photos" {
		t.Errorf("entry 0 = %+v; want Photos folder", entries[0])
	}
	if entries[1].Kind != remote.KindFile || entries[1].Modified.IsZero() {
		t.Errorf("entry 1 = %+v; want file with modified time", entries[1])
	}
}

func TestUploadSmallUsesSingleShot(t *testing.T) {
	var endpoint string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint = r.URL.Path
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{}`))
	}))

	local := filepath.Join(t.TempDir(), "small.jpg")
	if err := os.WriteFile(local, []byte("tiny payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Upload(context.Background(), local, "/media/small.jpg"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if endpoint != "/files/upload" {
		t.Errorf("endpoint = %q; want /files/upload", endpoint)
	}
}

func TestUploadLargeUsesChunkedSession(t *testing.T) {
	var (
		started, finished bool
		appends           int
		received          int64
		offsets           []int64
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/files/upload_session/start", func(w http.ResponseWriter, r *http.Request) {
		started = true
		n, _ := io.Copy(io.Discard, r.Body)
		received += n
		w.Write([]byte(`{"session_id":"sess-1"}`))
	})
	mux.HandleFunc("/files/upload_session/append_v2", func(w http.ResponseWriter, r *http.Request) {
		appends++
		var arg struct {
			Cursor struct {
				Offset int64 `json:"offset"`
			} `json:"cursor"`
		}
		json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg)
		offsets = append(offsets, arg.Cursor.Offset)
		n, _ := io.Copy(io.Discard, r.Body)
		received += n
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/files/upload_session/finish", func(w http.ResponseWriter, r *http.Request) {
		finished = true
		w.Write([]byte(`{}`))
	})

	c, _ := newTestClient(t, mux)

	size := int64(chunkSize + chunkSize/2)
	local := filepath.Join(t.TempDir(), "big.mp4")
	if err := os.WriteFile(local, bytes.Repeat([]byte{0xAB}, int(size)), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.Upload(context.Background(), local, "/media/big.mp4"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !started || !finished {
		t.Fatalf("started=%v finished=%v; want both", started, finished)
	}
	if appends != 1 {
		t.Errorf("appends = %d; want 1", appends)
	}
	if len(offsets) != 1 || offsets[0] != chunkSize {
		t.Errorf("append offsets = %v; want [%d]", offsets, chunkSize)
	}
	if received != size {
		t.Errorf("received %d bytes; want %d", received, size)
	}
}

func TestDownloadWritesDestination(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file contents"))
	}))

	dest := filepath.Join(t.TempDir(), "out.jpg")
	if err := c.Download(context.Background(), "/media/out.jpg", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "file contents" {
		t.Errorf("contents = %q", got)
	}
}
