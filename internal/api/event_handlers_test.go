package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/tracker"
)

func TestPostEvent_CreatesAndDisplays(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	rec := ts.do(t, http.MethodPost, "/v1/events", event.Envelope{
		ID: "dl-1", PackageID: "com.store", Title: "Installing", Progress: 5, ProgressMax: 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out tracker.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, tracker.ActionCreated, out.Action)
	require.Equal(t, event.KindDownload, out.Kind)

	rec = ts.do(t, http.MethodGet, "/v1/display", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var disp displayDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disp))
	require.True(t, disp.Visible)
	require.Equal(t, "priority", disp.Policy)
	require.NotNil(t, disp.Display)
	require.Equal(t, "dl-1", disp.Display.ID)
	require.Equal(t, 500, disp.Display.Progress)
}

func TestPostEvent_IgnoredReportsReason(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	rec := ts.do(t, http.MethodPost, "/v1/events", event.Envelope{
		ID: "n-1", PackageID: "com.chat", Title: "New message",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out tracker.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, tracker.ActionIgnored, out.Action)
	require.NotEmpty(t, out.Reason)
}

func TestPostEvent_BadRequests(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/v1/events", "{invalid").Code)

	rec := ts.do(t, http.MethodPost, "/v1/events", event.Envelope{PackageID: "com.store"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "id is required")
}

func TestPostEvent_RateLimited(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), func(d *Deps) { d.Limiter = denyAll{} })
	rec := ts.do(t, http.MethodPost, "/v1/events", event.Envelope{
		ID: "dl-1", PackageID: "com.store", Progress: 5, ProgressMax: 10,
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPostEvent_Async(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	rec := ts.do(t, http.MethodPost, "/v1/events?async=true", event.Envelope{
		ID: "dl-1", PackageID: "com.store", Progress: 5, ProgressMax: 10,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/v1/sources", nil)
		var body struct {
			Sources []tracker.Source `json:"sources"`
		}
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &body) != nil {
			return false
		}
		return len(body.Sources) == 1 && body.Sources[0].ID == "dl-1"
	}, time.Second, 5*time.Millisecond)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	testCases := []struct {
		name string
		env  event.Envelope
		want classifyDTO
	}{
		{
			name: "percentage",
			env:  event.Envelope{ID: "p", PackageID: "com.app", Title: "45% uploaded"},
			want: classifyDTO{Classified: true, Kind: event.KindPercentage, Priority: 2, Percent: 45},
		},
		{
			name: "download",
			env:  event.Envelope{ID: "d", PackageID: "com.app", Progress: 1, ProgressMax: 4},
			want: classifyDTO{Classified: true, Kind: event.KindDownload, Priority: 2},
		},
		{
			name: "timer",
			env:  event.Envelope{ID: "t", PackageID: "com.clock", SortKey: "RUNNING|⏳0:00:30|Σ0:01:00"},
			want: classifyDTO{
				Classified: true, Kind: event.KindCountdownTimer, Priority: 1,
				Timer: &timerDTO{Running: true, RemainingSeconds: 30, TotalSeconds: 60},
			},
		},
		{
			name: "nothing",
			env:  event.Envelope{ID: "n", PackageID: "com.app", Title: "hello"},
			want: classifyDTO{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/v1/classify", tc.env)
			require.Equal(t, http.StatusOK, rec.Code)
			var got classifyDTO
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			require.Equal(t, tc.want, got)
		})
	}
}

func TestGetDisplay_Empty(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	rec := ts.do(t, http.MethodGet, "/v1/display", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var disp displayDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disp))
	require.False(t, disp.Visible)
	require.Nil(t, disp.Display)
}
