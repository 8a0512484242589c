package dhisclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/NadeemAtDure/dhis2-core/lib/jobs"
	"github.com/NadeemAtDure/dhis2-core/lib/trackerimport"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	client := &Client{
		Scheme: "http",
		Host:   u.Hostname(),
		User:   "admin",
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			t.Fatal(err)
		}
		client.Port = n
	}
	return client, server
}

func TestQueryDataItemsSendsParameters(t *testing.T) {
	var gotQuery url.Values
	var gotAuth bool

	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _, gotAuth = r.BasicAuth()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pager":     map[string]int{"page": 1, "total": 1, "pageSize": 50, "pageCount": 1},
			"dataItems": []map[string]string{{"id": "abcdefone11", "name": "ANC 1"}},
		})
	})

	page, err := client.QueryDataItems(context.Background(), DataItemsQuery{
		Filters: []string{"name:ilike:anc"},
		Order:   []string{"name:asc"},
		Locale:  "fr",
		Paging:  true,
		Page:    1,
	})
	if err != nil {
		t.Fatalf("QueryDataItems error: %v", err)
	}

	if !gotAuth {
		t.Error("request should carry basic auth")
	}
	if gotQuery.Get("filter") != "name:ilike:anc" {
		t.Errorf("filter = %q", gotQuery.Get("filter"))
	}
	if gotQuery.Get("order") != "name:asc" {
		t.Errorf("order = %q", gotQuery.Get("order"))
	}
	if gotQuery.Get("locale") != "fr" {
		t.Errorf("locale = %q", gotQuery.Get("locale"))
	}

	if len(page.DataItems) != 1 || page.DataItems[0].Name != "ANC 1" {
		t.Errorf("unexpected page: %+v", page)
	}
	if page.Pager == nil || page.Pager.Total != 1 {
		t.Errorf("unexpected pager: %+v", page.Pager)
	}
}

func TestPostEventsSync(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/api/tracker/events") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("dryRun") != "true" {
			t.Errorf("dryRun not propagated: %v", r.URL.Query())
		}

		var body struct {
			Events []trackerimport.Event `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if len(body.Events) != 1 {
			t.Errorf("events = %+v", body.Events)
		}

		json.NewEncoder(w).Encode(trackerimport.ImportSummary{
			Status: trackerimport.StatusOK,
			Stats:  trackerimport.Stats{Created: 1},
		})
	})

	opts := trackerimport.DefaultImportOptions()
	opts.DryRun = true

	summary, err := client.PostEventsSync(context.Background(), []trackerimport.Event{
		{Event: "eventone123", Program: "progone1234", ProgramStage: "stageone123", OrgUnit: "orgunitone1"},
	}, opts)
	if err != nil {
		t.Fatalf("PostEventsSync error: %v", err)
	}
	if summary.Stats.Created != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestGetEvent(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/tracker/events/eventone123") {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(trackerimport.StoredEvent{
			Event:     "eventone123",
			Program:   "progone1234",
			EventDate: "2024-03-01T00:00:00Z",
		})
	})

	event, err := client.GetEvent(context.Background(), "eventone123")
	if err != nil {
		t.Fatalf("GetEvent error: %v", err)
	}
	if event.Event != "eventone123" || event.EventDate != "2024-03-01T00:00:00Z" {
		t.Errorf("event = %+v", event)
	}
}

func TestWaitForJobReportPollsUntilDone(t *testing.T) {
	calls := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		report := jobs.Report{ID: "job1", Phase: jobs.PhaseRunning}
		if calls >= 3 {
			report.Phase = jobs.PhaseCompleted
			report.Summary = &trackerimport.ImportSummary{Status: trackerimport.StatusOK}
		}
		json.NewEncoder(w).Encode(report)
	})

	report, err := client.WaitForJobReport(context.Background(), "job1")
	if err != nil {
		t.Fatalf("WaitForJobReport error: %v", err)
	}
	if report.Phase != jobs.PhaseCompleted {
		t.Errorf("phase = %s", report.Phase)
	}
	if calls < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls)
	}
}

func TestDoSurfacesRemoteErrors(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"status": "ERROR"}`))
	})

	_, err := client.GetJobReport(context.Background(), "job1")
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
}
