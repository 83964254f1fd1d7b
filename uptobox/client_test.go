package uptobox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptofetch/internal"
	"uptofetch/utils"
)

// fakeService answers API paths with canned bodies and records every query
type fakeService struct {
	mu      sync.Mutex
	routes  map[string][]string
	queries map[string][]url.Values
	hits    int
}

func newFakeService() *fakeService {
	return &fakeService{
		routes:  make(map[string][]string),
		queries: make(map[string][]url.Values),
	}
}

// on queues bodies for path; the last body repeats once the queue is drained
func (f *fakeService) on(path string, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = append(f.routes[path], bodies...)
}

func (f *fakeService) calls(path string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[path]
}

func (f *fakeService) totalHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hits++
	path := strings.TrimPrefix(r.URL.Path, "/")
	f.queries[path] = append(f.queries[path], r.URL.Query())

	bodies := f.routes[path]
	if len(bodies) == 0 {
		http.NotFound(w, r)
		return
	}
	body := bodies[0]
	if len(bodies) > 1 {
		f.routes[path] = bodies[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body)
}

type fakeWaitHandler struct {
	accept bool
	err    error
	asked  []int
	ticks  []string
}

func (h *fakeWaitHandler) ConfirmWait(ctx context.Context, waitSeconds int) (bool, error) {
	h.asked = append(h.asked, waitSeconds)
	return h.accept, h.err
}

func (h *fakeWaitHandler) Countdown(remaining string) {
	h.ticks = append(h.ticks, remaining)
}

type sleepRecorder struct {
	calls []time.Duration
	failAt int
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	if s.failAt > 0 && len(s.calls) == s.failAt {
		return context.Canceled
	}
	return nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *sleepRecorder, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Token:      "secret-token",
		APIURL:     server.URL + "/",
		HTTPClient: utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{Timeout: 5 * time.Second}),
		Logger:     internal.NewSecureLogger(io.Discard, internal.LogLevelDebug, false, false),
	})
	require.NoError(t, err)

	recorder := &sleepRecorder{}
	client.sleep = recorder.sleep
	return client, recorder, server
}

const (
	premiumUser  = `{"statusCode":0,"message":"Success","data":{"premium":1}}`
	freeUser     = `{"statusCode":0,"message":"Success","data":{"premium":0}}`
	readyLink    = `{"statusCode":0,"message":"Success","data":{"dlLink":"https://www1.uptobox.com/dl/abc123/file.bin"}}`
	pendingLink  = `{"statusCode":16,"message":"Waiting needed","data":{"waiting":30,"waiting_token":"T1"}}`
	pendingAgain = `{"statusCode":16,"message":"Waiting needed","data":{"waiting":30,"waiting_token":"T2"}}`
)

func TestNewClient_RejectsRelativeAPIURL(t *testing.T) {
	_, err := NewClient(Config{APIURL: "uptobox.com/api"})
	assert.Error(t, err)
}

func TestCheckAccessTier(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected internal.AccessTier
		errType  *internal.ErrorType
	}{
		{"premium", premiumUser, internal.TierElevated, nil},
		{"free", freeUser, internal.TierStandard, nil},
		{"missing flag", `{"statusCode":0,"data":{}}`, internal.TierStandard, errType(internal.ErrRemoteUnavailable)},
		{"missing data", `{"statusCode":0,"message":"Success"}`, internal.TierStandard, errType(internal.ErrRemoteUnavailable)},
		{"malformed", `<html>`, internal.TierStandard, errType(internal.ErrRemoteUnavailable)},
		{"invalid token", `{"statusCode":13,"message":"Invalid token","data":"bad"}`, internal.TierStandard, errType(internal.ErrAuth)},
		{"bad credentials", `{"statusCode":2,"message":"Invalid credentials"}`, internal.TierStandard, errType(internal.ErrAuth)},
		{"unknown status", `{"statusCode":1,"message":"An error occured"}`, internal.TierStandard, errType(internal.ErrRemoteUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newFakeService()
			service.on("user/me", tt.body)
			client, _, _ := newTestClient(t, service)

			tier, err := client.CheckAccessTier(context.Background())
			if tt.errType != nil {
				require.Error(t, err)
				assert.True(t, internal.IsType(err, *tt.errType), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tier)
			assert.Equal(t, "secret-token", service.calls("user/me")[0].Get("token"))
		})
	}
}

func errType(t internal.ErrorType) *internal.ErrorType {
	return &t
}

func TestCheckAccessTier_HTTPUnauthorized(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.CheckAccessTier(context.Background())
	assert.True(t, internal.IsType(err, internal.ErrAuth), "got %v", err)
}

func TestCheckAccessTier_NoToken(t *testing.T) {
	service := newFakeService()
	client, _, _ := newTestClient(t, service)
	client.token = ""

	_, err := client.CheckAccessTier(context.Background())
	assert.True(t, internal.IsType(err, internal.ErrAuth))
	assert.Zero(t, service.totalHits())
}

func TestFileMetadata_NormalizesURL(t *testing.T) {
	service := newFakeService()
	service.on("link/info", `{"statusCode":0,"data":{"list":[{"file_code":"abc123","file_name":"movie.mkv","file_size":1500000}]}}`)
	client, _, _ := newTestClient(t, service)

	info, err := client.FileMetadata(context.Background(), "https://uptobox.com/abc123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", service.calls("link/info")[0].Get("fileCodes"))
	assert.Equal(t, "movie.mkv", info.Name)
	assert.Equal(t, int64(1500000), info.Size)
	assert.Equal(t, "1.43 MB", info.SizeLabel)
	assert.Equal(t, "abc123", info.Code)
}

func TestFileMetadata_NotFound(t *testing.T) {
	bodies := map[string]string{
		"empty list":  `{"statusCode":0,"data":{"list":[]}}`,
		"entry error": `{"statusCode":0,"data":{"list":[{"file_code":"abc123","error":{"code":28,"message":"File not found"}}]}}`,
		"status code": `{"statusCode":28,"message":"File not found"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			service := newFakeService()
			service.on("link/info", body)
			client, _, _ := newTestClient(t, service)

			_, err := client.FileMetadata(context.Background(), "abc123")
			assert.True(t, internal.IsType(err, internal.ErrNotFound), "got %v", err)
		})
	}
}

func TestFileMetadata_InvalidCodeMakesNoRequest(t *testing.T) {
	service := newFakeService()
	client, _, _ := newTestClient(t, service)

	for _, code := range []internal.ShareCode{"", "https://example.com/abc123", "abc 123"} {
		_, err := client.FileMetadata(context.Background(), code)
		assert.True(t, internal.IsType(err, internal.ErrInvalidCode), "code %q: got %v", code, err)
	}
	assert.Zero(t, service.totalHits())
}

func TestSearch(t *testing.T) {
	service := newFakeService()
	service.on("user/files", `{"statusCode":0,"data":{"files":[
		{"file_name":"b.mkv","file_size":2048,"file_code":"code2"},
		{"file_name":"a.mkv","file_size":1024,"file_code":"code1"}
	]}}`)
	client, _, _ := newTestClient(t, service)

	results, err := client.Search(context.Background(), "//", 10, "mkv")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, internal.SearchResult{Name: "b.mkv", Size: 2048, Code: "code2"}, results[0])
	assert.Equal(t, internal.SearchResult{Name: "a.mkv", Size: 1024, Code: "code1"}, results[1])

	query := service.calls("user/files")[0]
	assert.Equal(t, "//", query.Get("path"))
	assert.Equal(t, "10", query.Get("limit"))
	assert.Equal(t, "file_name", query.Get("searchField"))
	assert.Equal(t, "mkv", query.Get("search"))
	assert.Equal(t, "secret-token", query.Get("token"))
}

func TestSearch_EmptyAndInvalid(t *testing.T) {
	service := newFakeService()
	service.on("user/files", `{"statusCode":0,"data":{"files":[]}}`)
	client, _, _ := newTestClient(t, service)

	results, err := client.Search(context.Background(), "//", 5, "nothing")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	_, err = client.Search(context.Background(), "//", 0, "x")
	assert.Error(t, err)
	assert.Len(t, service.calls("user/files"), 1)
}

func TestSearch_MissingFilesKey(t *testing.T) {
	service := newFakeService()
	service.on("user/files", `{"statusCode":0,"data":{}}`)
	client, _, _ := newTestClient(t, service)

	_, err := client.Search(context.Background(), "//", 5, "x")
	assert.True(t, internal.IsType(err, internal.ErrRemoteUnavailable), "got %v", err)
}

func TestRequestLink_NeitherLinkNorToken(t *testing.T) {
	service := newFakeService()
	service.on("link", `{"statusCode":0,"data":{"waiting":30}}`)
	client, _, _ := newTestClient(t, service)

	_, err := client.RequestLink(context.Background(), "abc123", "")
	assert.True(t, internal.IsType(err, internal.ErrRemoteUnavailable), "got %v", err)
}

func TestRequestLink_IsNotRetried(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	retry := utils.RetryConfigFor(3)
	retry.BaseDelay = time.Millisecond
	client.http = utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:     5 * time.Second,
		RetryConfig: retry,
	})

	_, err := client.RequestLink(context.Background(), "abc123", "T1")
	assert.True(t, internal.IsType(err, internal.ErrRemoteUnavailable), "got %v", err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits, "waiting tokens are single use")
}

func TestResolveDownloadLink_PremiumSkipsWait(t *testing.T) {
	service := newFakeService()
	service.on("user/me", premiumUser)
	service.on("link", readyLink)
	client, sleeps, _ := newTestClient(t, service)
	handler := &fakeWaitHandler{}

	link, err := client.ResolveDownloadLink(context.Background(), "https://uptobox.com/abc123", handler)
	require.NoError(t, err)

	assert.Equal(t, "https://www1.uptobox.com/dl/abc123/file.bin", link)
	assert.Empty(t, handler.asked, "premium accounts are never asked to wait")
	assert.Empty(t, sleeps.calls)
	require.Len(t, service.calls("link"), 1)
	assert.Equal(t, "abc123", service.calls("link")[0].Get("file_code"))
	assert.Empty(t, service.calls("link")[0].Get("waiting_token"))
}

func TestResolveDownloadLink_PremiumAskedToWait(t *testing.T) {
	service := newFakeService()
	service.on("user/me", premiumUser)
	service.on("link", pendingLink)
	client, _, _ := newTestClient(t, service)
	handler := &fakeWaitHandler{accept: true}

	_, err := client.ResolveDownloadLink(context.Background(), "abc123", handler)
	assert.True(t, internal.IsType(err, internal.ErrRemoteUnavailable), "got %v", err)
	assert.Empty(t, handler.asked)
}

func TestResolveDownloadLink_DeclinedWait(t *testing.T) {
	service := newFakeService()
	service.on("user/me", freeUser)
	service.on("link", pendingLink)
	client, sleeps, _ := newTestClient(t, service)
	handler := &fakeWaitHandler{accept: false}

	_, err := client.ResolveDownloadLink(context.Background(), "abc123", handler)
	assert.True(t, internal.IsType(err, internal.ErrUserAborted), "got %v", err)

	assert.Equal(t, []int{30}, handler.asked)
	assert.Empty(t, sleeps.calls)
	assert.Empty(t, handler.ticks)
	assert.Len(t, service.calls("link"), 1, "no continuation request after a decline")
}

func TestResolveDownloadLink_AcceptedWait(t *testing.T) {
	service := newFakeService()
	service.on("user/me", freeUser)
	service.on("link", pendingLink, readyLink)
	client, sleeps, _ := newTestClient(t, service)
	handler := &fakeWaitHandler{accept: true}

	link, err := client.ResolveDownloadLink(context.Background(), "abc123", handler)
	require.NoError(t, err)
	assert.Equal(t, "https://www1.uptobox.com/dl/abc123/file.bin", link)

	require.Len(t, sleeps.calls, 30)
	for _, d := range sleeps.calls {
		assert.Equal(t, time.Second, d)
	}

	require.Len(t, handler.ticks, 31)
	assert.Equal(t, "00:30", handler.ticks[0])
	assert.Equal(t, "00:01", handler.ticks[29])
	assert.Equal(t, "00:00", handler.ticks[30])

	calls := service.calls("link")
	require.Len(t, calls, 2)
	assert.Equal(t, "T1", calls[1].Get("waiting_token"))
	assert.Equal(t, "abc123", calls[1].Get("file_code"))
	assert.Len(t, service.calls("user/me"), 1, "status is not re-queried during the wait")
}

func TestResolveDownloadLink_SecondPendingIsProtocolError(t *testing.T) {
	service := newFakeService()
	service.on("user/me", freeUser)
	service.on("link", pendingLink, pendingAgain)
	client, _, _ := newTestClient(t, service)
	handler := &fakeWaitHandler{accept: true}

	_, err := client.ResolveDownloadLink(context.Background(), "abc123", handler)
	assert.True(t, internal.IsType(err, internal.ErrRemoteUnavailable), "got %v", err)
	assert.Len(t, service.calls("link"), 2, "exactly one continuation request")
	assert.Equal(t, []int{30}, handler.asked)
}

func TestResolveDownloadLink_FreeAccountReadyAtOnce(t *testing.T) {
	service := newFakeService()
	service.on("user/me", freeUser)
	service.on("link", readyLink)
	client, _, _ := newTestClient(t, service)
	handler := &fakeWaitHandler{}

	link, err := client.ResolveDownloadLink(context.Background(), "abc123", handler)
	require.NoError(t, err)
	assert.NotEmpty(t, link)
	assert.Empty(t, handler.asked)
}

func TestResolveDownloadLink_CanceledDuringCountdown(t *testing.T) {
	service := newFakeService()
	service.on("user/me", freeUser)
	service.on("link", pendingLink, readyLink)
	client, sleeps, _ := newTestClient(t, service)
	sleeps.failAt = 3
	handler := &fakeWaitHandler{accept: true}

	_, err := client.ResolveDownloadLink(context.Background(), "abc123", handler)
	assert.True(t, internal.IsType(err, internal.ErrCanceled), "got %v", err)
	assert.Len(t, service.calls("link"), 1)
}

func TestResolveDownloadLink_ConfirmError(t *testing.T) {
	service := newFakeService()
	service.on("user/me", freeUser)
	service.on("link", pendingLink)
	client, _, _ := newTestClient(t, service)
	handler := &fakeWaitHandler{err: fmt.Errorf("stdin closed")}

	_, err := client.ResolveDownloadLink(context.Background(), "abc123", handler)
	assert.EqualError(t, err, "stdin closed")
	assert.Len(t, service.calls("link"), 1)
}

func TestResolveDownloadLink_InvalidCode(t *testing.T) {
	service := newFakeService()
	client, _, _ := newTestClient(t, service)

	_, err := client.ResolveDownloadLink(context.Background(), "https://uptobox.com/", &fakeWaitHandler{})
	assert.True(t, internal.IsType(err, internal.ErrInvalidCode), "got %v", err)
	assert.Zero(t, service.totalHits())
}

func TestUploadTarget_ProtocolRelative(t *testing.T) {
	service := newFakeService()
	client, _, server := newTestClient(t, service)
	host := strings.TrimPrefix(server.URL, "http://")
	service.on("upload", fmt.Sprintf(`{"statusCode":0,"data":{"uploadLink":"//%s/upload/xyz"}}`, host))

	target, err := client.UploadTarget(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://"+host+"/upload/xyz", target)
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf-bytes"), 0644))

	var (
		mu       sync.Mutex
		received string
		filename string
		ua       string
	)
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		host := strings.TrimPrefix(server.URL, "http://")
		fmt.Fprintf(w, `{"statusCode":0,"data":{"uploadLink":"//%s/upload/target"}}`, host)
	})
	mux.HandleFunc("/upload/target", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		mu.Lock()
		received = string(data)
		filename = header.Filename
		ua = r.Header.Get("User-Agent")
		mu.Unlock()

		io.WriteString(w, `{"files":[{"name":"report.pdf","size":9,"url":"https://uptobox.com/newcode"}]}`)
	})

	client, _, srv := newTestClient(t, mux)
	server = srv
	observer := &recordingObserver{}

	link, err := client.UploadFile(context.Background(), path, observer)
	require.NoError(t, err)

	assert.Equal(t, "https://uptobox.com/newcode", link)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "pdf-bytes", received)
	assert.Equal(t, "report.pdf", filename)
	assert.Equal(t, utils.DefaultUserAgent, ua)
	assert.True(t, strings.HasPrefix(observer.last(), "Uploading report.pdf: 100.00%"), "got %q", observer.last())
}

func TestUploadFile_MissingFile(t *testing.T) {
	service := newFakeService()
	client, _, _ := newTestClient(t, service)

	_, err := client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing.bin"), nil)
	assert.True(t, internal.IsType(err, internal.ErrLocalFile), "got %v", err)
	assert.Zero(t, service.totalHits())
}

func TestUploadFile_ObserverCancels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 1<<16), 0644))

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		host := strings.TrimPrefix(server.URL, "http://")
		fmt.Fprintf(w, `{"statusCode":0,"data":{"uploadLink":"//%s/upload/target"}}`, host)
	})
	mux.HandleFunc("/upload/target", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"files":[{"url":"https://uptobox.com/should-not-be-used"}]}`)
	})
	client, _, srv := newTestClient(t, mux)
	server = srv

	_, err := client.UploadFile(context.Background(), path, &recordingObserver{canceled: true})
	assert.True(t, internal.IsType(err, internal.ErrCanceled), "got %v", err)
}

func TestUploadFile_ErrorEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		host := strings.TrimPrefix(server.URL, "http://")
		fmt.Fprintf(w, `{"statusCode":0,"data":{"uploadLink":"//%s/upload/target"}}`, host)
	})
	mux.HandleFunc("/upload/target", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"files":[{"name":"a.bin","error":"File too big"}]}`)
	})
	client, _, srv := newTestClient(t, mux)
	server = srv

	_, err := client.UploadFile(context.Background(), path, nil)
	require.Error(t, err)
	assert.True(t, internal.IsType(err, internal.ErrRemoteUnavailable))
	assert.Contains(t, err.Error(), "File too big")
}

type recordingObserver struct {
	mu        sync.Mutex
	snapshots []string
	canceled  bool
}

func (o *recordingObserver) Progress(snapshot string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = append(o.snapshots, snapshot)
}

func (o *recordingObserver) Canceled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canceled
}

func (o *recordingObserver) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.snapshots) == 0 {
		return ""
	}
	return o.snapshots[len(o.snapshots)-1]
}
