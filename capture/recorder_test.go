package capture

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/evidence/capture/artifact"
	"github.com/hazyhaar/evidence/fingerprint"
)

const testTarget = "https://app.example.com/concerns/abc?mention_id=xyz"

func fixedNamer() *fingerprint.Namer {
	return fingerprint.New(fingerprint.WithClock(func() time.Time { return time.UnixMilli(1708700000123) }))
}

func newTestRecorder(t *testing.T, rawTarget string, opts ...RecorderOption) (*Recorder, *Store) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "logs"), filepath.Join(dir, "screenshots"))
	if err := store.Prepare(); err != nil {
		t.Fatal(err)
	}
	tg, err := ParseTarget(rawTarget)
	if err != nil {
		t.Fatal(err)
	}
	return NewRecorder(tg, store, fixedNamer(), nil, opts...), store
}

func logFiles(t *testing.T, store *Store) []string {
	t.Helper()
	entries, err := os.ReadDir(store.LogsDir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return m
}

func TestRecorder_RequestFileName(t *testing.T) {
	rec, store := newTestRecorder(t, testTarget)
	req := &fakeRequest{url: "https://api.example.com/v1/items", method: "GET", headers: map[string]string{"Accept": "*/*"}}
	rec.OnRequest(context.Background(), req)

	prefix, _ := fixedNamer().Filename(req.url, req.headers)
	want := "mention-id-xyz-" + prefix + ".request.json"
	files := logFiles(t, store)
	if len(files) != 1 || files[0] != want {
		t.Fatalf("files: got %v, want [%s]", files, want)
	}

	m := readJSON(t, filepath.Join(store.LogsDir, want))
	if m["url"] != req.url || m["method"] != "GET" || m["postData"] != nil {
		t.Errorf("record: %v", m)
	}
	if _, ok := m["postData"]; !ok {
		t.Error("postData key missing")
	}
	if rec.Stats().Requests != 1 {
		t.Errorf("Stats: %+v", rec.Stats())
	}
}

func TestRecorder_RequestWithoutMentionID(t *testing.T) {
	rec, store := newTestRecorder(t, "https://app.example.com/concerns/abc")
	rec.OnRequest(context.Background(), &fakeRequest{url: "https://api.example.com/", method: "GET", headers: map[string]string{}})

	files := logFiles(t, store)
	if len(files) != 1 || !strings.HasPrefix(files[0], "mention-id-null-") {
		t.Fatalf("files: %v", files)
	}
}

func TestRecorder_PostData(t *testing.T) {
	rec, store := newTestRecorder(t, testTarget)
	ctx := context.Background()
	rec.OnRequest(ctx, &fakeRequest{url: "https://api.example.com/json", method: "POST", headers: map[string]string{}, body: `{"a":1}`, hasBody: true})
	rec.OnRequest(ctx, &fakeRequest{url: "https://api.example.com/form", method: "POST", headers: map[string]string{}, body: "a=1", hasBody: true})

	for _, name := range logFiles(t, store) {
		m := readJSON(t, filepath.Join(store.LogsDir, name))
		switch m["url"] {
		case "https://api.example.com/json":
			obj, ok := m["postData"].(map[string]any)
			if !ok || obj["a"] != float64(1) {
				t.Errorf("json postData: %#v", m["postData"])
			}
		case "https://api.example.com/form":
			if m["postData"] != "a=1" {
				t.Errorf("form postData: %#v", m["postData"])
			}
		default:
			t.Errorf("unexpected record %v", m["url"])
		}
	}
}

func TestRecorder_ResponseFilter(t *testing.T) {
	rec, store := newTestRecorder(t, testTarget)
	ctx := context.Background()

	rec.OnResponse(ctx, &fakeResponse{url: "https://api.example.com/a", status: 200,
		headers: map[string]string{"Content-Type": "application/text"}, body: []byte("hello")})
	rec.OnResponse(ctx, &fakeResponse{url: "https://api.example.com/b", status: 200,
		headers: map[string]string{"Content-Type": "text/html"}, body: []byte("<p>")})
	rec.OnResponse(ctx, &fakeResponse{url: "https://api.example.com/c", status: 200,
		headers: map[string]string{"content-type": "application/text; charset=utf-8"}, body: []byte("x")})
	rec.OnResponse(ctx, &fakeResponse{url: "https://api.example.com/d", status: 200,
		headers: map[string]string{"Content-Type": "application/json"}})
	rec.OnResponse(ctx, &fakeResponse{url: "https://api.example.com/e", status: 204,
		headers: map[string]string{}})

	files := logFiles(t, store)
	if len(files) != 2 {
		t.Fatalf("files: got %v, want 2 response records", files)
	}
	for _, name := range files {
		if !strings.HasPrefix(name, "abc-") || !strings.HasSuffix(name, ".response.json") {
			t.Errorf("name: %s", name)
		}
	}
	st := rec.Stats()
	if st.Responses != 2 || st.Skipped != 3 {
		t.Errorf("Stats: %+v", st)
	}

	prefix, _ := fixedNamer().Filename("https://api.example.com/a", map[string]string{"Content-Type": "application/text"})
	data, err := os.ReadFile(filepath.Join(store.LogsDir, "abc-"+prefix+".response.json"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := artifact.UnmarshalResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Content) != "hello" || resp.Status != 200 {
		t.Errorf("record: %+v", resp)
	}
	if !strings.Contains(string(data), "\n  \"url\"") {
		t.Errorf("record not indented with two spaces:\n%s", data)
	}
}

func TestRecorder_BodyFailureWritesEmptyContent(t *testing.T) {
	rec, store := newTestRecorder(t, testTarget)
	rec.OnResponse(context.Background(), &fakeResponse{url: "https://api.example.com/gone", status: 301,
		headers: map[string]string{"Content-Type": "application/text"}, bodyErr: errors.New("no body for redirect")})

	files := logFiles(t, store)
	if len(files) != 1 {
		t.Fatalf("files: %v", files)
	}
	m := readJSON(t, filepath.Join(store.LogsDir, files[0]))
	if m["content"] != "" {
		t.Errorf("content: %#v, want empty", m["content"])
	}
	if rec.Stats().Dropped != 0 {
		t.Errorf("Stats: %+v", rec.Stats())
	}
}

func TestRecorder_UnsafeMentionIDDrops(t *testing.T) {
	var mu sync.Mutex
	var drops []artifact.Drop
	rec, store := newTestRecorder(t, "https://app.example.com/r/1?mention_id=..%2F..%2Fetc",
		WithRecorderRunID("run-1"),
		WithDropHandler(func(d artifact.Drop) {
			mu.Lock()
			drops = append(drops, d)
			mu.Unlock()
		}))

	rec.OnRequest(context.Background(), &fakeRequest{url: "https://api.example.com/", method: "GET", headers: map[string]string{}})

	if files := logFiles(t, store); len(files) != 0 {
		t.Fatalf("files: %v", files)
	}
	if rec.Stats().Dropped != 1 {
		t.Errorf("Stats: %+v", rec.Stats())
	}
	if len(drops) != 1 || drops[0].Kind != "request" || drops[0].RunID != "run-1" || drops[0].TargetURL == "" {
		t.Errorf("drops: %+v", drops)
	}
}

func TestRecorder_DotsInMentionIDAreKept(t *testing.T) {
	rec, store := newTestRecorder(t, "https://site.example/review/v1..2?mention_id=a..b")
	ctx := context.Background()

	rec.OnRequest(ctx, &fakeRequest{url: "https://api.example.com/", method: "GET", headers: map[string]string{}})
	rec.OnResponse(ctx, &fakeResponse{url: "https://api.example.com/x", status: 200,
		headers: map[string]string{"Content-Type": "application/text"}, body: []byte("ok")})

	files := logFiles(t, store)
	if len(files) != 2 {
		t.Fatalf("files: got %v, want request and response records", files)
	}
	var sawReq, sawResp bool
	for _, name := range files {
		sawReq = sawReq || strings.HasPrefix(name, "mention-id-a..b-") && strings.HasSuffix(name, ".request.json")
		sawResp = sawResp || strings.HasPrefix(name, "v1..2-") && strings.HasSuffix(name, ".response.json")
	}
	if !sawReq || !sawResp {
		t.Errorf("files: %v", files)
	}
	if st := rec.Stats(); st.Requests != 1 || st.Responses != 1 || st.Dropped != 0 {
		t.Errorf("Stats: %+v", st)
	}
}

func TestRecorder_BadRequestURLDrops(t *testing.T) {
	rec, _ := newTestRecorder(t, testTarget)
	rec.OnRequest(context.Background(), &fakeRequest{url: "http://[::1", method: "GET"})
	if rec.Stats().Dropped != 1 {
		t.Errorf("Stats: %+v", rec.Stats())
	}
}

type panicRequest struct{ fakeRequest }

func (*panicRequest) PostData() (string, bool) { panic("engine exploded") }

func TestRecorder_HandlersAsyncAndIsolated(t *testing.T) {
	rec, store := newTestRecorder(t, testTarget)
	h := rec.Handlers(context.Background())

	h.OnRequest(&fakeRequest{url: "https://api.example.com/1", method: "GET", headers: map[string]string{}})
	h.OnRequest(&panicRequest{fakeRequest{url: "https://api.example.com/2", method: "GET", headers: map[string]string{}}})
	h.OnResponse(&fakeResponse{url: "https://api.example.com/3", status: 200,
		headers: map[string]string{"Content-Type": "application/text"}, body: []byte("ok")})
	rec.Wait()

	st := rec.Stats()
	if st.Requests != 1 || st.Responses != 1 || st.Dropped != 1 {
		t.Errorf("Stats: %+v", st)
	}
	if n := len(logFiles(t, store)); n != 2 {
		t.Errorf("files: %d", n)
	}

	// Events after Wait are ignored.
	h.OnRequest(&fakeRequest{url: "https://api.example.com/late", method: "GET", headers: map[string]string{}})
	rec.Wait()
	if rec.Stats().Requests != 1 {
		t.Errorf("late event recorded: %+v", rec.Stats())
	}
}
