package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"genrep/internal/gentool"
	"genrep/internal/outcome"
	"genrep/internal/scan/scantest"
	"genrep/internal/summary"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	s := New(cfg)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return ts
}

func upload(t *testing.T, url, field string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "match.rep")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	resp, err := http.Post(url+"/api/parse", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestParse(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp := upload(t, ts.URL, "replay", scantest.DuelFile())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var rep summary.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Result != outcome.TextWin || len(rep.Players) != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestParse_Errors(t *testing.T) {
	ts := newTestServer(t, Config{})

	if resp := upload(t, ts.URL, "replay", []byte("definitely not a replay")); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("garbage upload status = %d, want 422", resp.StatusCode)
	}
	if resp := upload(t, ts.URL, "file", scantest.DuelFile()); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("wrong field status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateJob_Validation(t *testing.T) {
	ts := newTestServer(t, Config{})
	for _, body := range []string{`{`, `{"urls":[]}`, `{"urls":["file:///etc/passwd"]}`} {
		resp, err := http.Post(ts.URL+"/api/jobs", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/jobs/unknown")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d", resp.StatusCode)
	}
}

func newArchive(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2024_03_March/15_Friday/Alpha_1A2B3C/10-53-20_1v1.rep", func(w http.ResponseWriter, r *http.Request) {
		w.Write(scantest.DuelFile())
	})
	archive := httptest.NewServer(mux)
	t.Cleanup(archive.Close)
	return archive
}

func createJob(t *testing.T, ts *httptest.Server, urls ...string) Job {
	t.Helper()
	body, _ := json.Marshal(createJobRequest{URLs: urls})
	resp, err := http.Post(ts.URL+"/api/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestJob_RunsToCompletion(t *testing.T) {
	archive := newArchive(t)
	ts := newTestServer(t, Config{Downloader: gentool.NewClient()})

	good := archive.URL + "/2024_03_March/15_Friday/Alpha_1A2B3C/10-53-20_1v1.rep"
	job := createJob(t, ts, good, good, archive.URL+"/missing.rep")
	if job.ID == "" || job.Total != 3 {
		t.Fatalf("job = %+v", job)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/api/jobs/" + job.ID)
		if err != nil {
			t.Fatal(err)
		}
		json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if job.Status != JobStatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not finish")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if job.Status != JobStatusDone {
		t.Fatalf("status = %s (%s)", job.Status, job.Error)
	}
	if job.Stats.Parsed != 1 || job.Stats.Duplicates != 1 || job.Stats.Failed != 1 {
		t.Errorf("stats = %+v", job.Stats)
	}
	if len(job.Results) != 3 || job.Results[2].Error == "" {
		t.Errorf("results = %+v", job.Results)
	}
}

func TestJobFeed(t *testing.T) {
	archive := newArchive(t)
	ts := newTestServer(t, Config{Downloader: gentool.NewClient(), WorkerCount: 1})

	good := archive.URL + "/2024_03_March/15_Friday/Alpha_1A2B3C/10-53-20_1v1.rep"
	job := createJob(t, ts, good)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/jobs/"+job.ID+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot Job
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.ID != job.ID {
		t.Errorf("snapshot = %+v", snapshot)
	}

	// The job may finish before the subscription; then only the snapshot
	// arrives and it is already done.
	if snapshot.Status != JobStatusRunning {
		return
	}

	var last Event
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("read event: %v", err)
			}
			break
		}
		last = ev
	}
	if last.Type != "finished" || last.Done != 1 {
		t.Errorf("last event = %+v", last)
	}
}
