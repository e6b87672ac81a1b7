package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/example/meetgrid/internal/http"
	"github.com/example/meetgrid/internal/ratelimit"
	"github.com/example/meetgrid/internal/testfixtures"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T, deps testfixtures.MeetingServiceDeps) (*apiClient, *testfixtures.ServiceFactory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := testfixtures.NewServiceFactory()
	deps.Logger = logger
	svc := factory.NewMeetingService(deps)

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Meetings: apihttp.NewMeetingHandler(svc, logger),
		Middleware: []func(http.Handler) http.Handler{
			apihttp.RequestLogger(logger),
			apihttp.ClientOrigin,
		},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}, factory
}

func (c *apiClient) do(method, path string, body any, header map[string]string) (*http.Response, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.srv.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp, out
}

func createMeeting(t *testing.T, c *apiClient, allowGuest bool) (meetingID, adminToken string, participants []string) {
	t.Helper()
	resp, body := c.do(http.MethodPost, "/api/meetings", map[string]any{
		"title":            "Team sync",
		"dates":            []string{"2026-03-02", "2026-03-03"},
		"participantNames": []string{"Aiko", "Ben"},
		"allowGuest":       allowGuest,
		"startHour":        9,
		"endHour":          12,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	meetingID = body["meetingId"].(string)
	adminToken = body["adminToken"].(string)
	assert.Contains(t, body["shareUrl"], meetingID)

	resp, meeting := c.do(http.MethodGet, "/api/meetings/"+meetingID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, p := range meeting["participants"].([]any) {
		participants = append(participants, p.(map[string]any)["id"].(string))
	}
	return meetingID, adminToken, participants
}

func TestMeetingLifecycle(t *testing.T) {
	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{})
	meetingID, adminToken, participants := createMeeting(t, c, false)
	require.Len(t, participants, 2)
	base := "/api/meetings/" + meetingID
	pid := participants[0]
	admin := map[string]string{"X-Admin-Token": adminToken}

	resp, meeting := c.do(http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := json.Marshal(meeting)
	assert.NotContains(t, string(raw), adminToken)

	resp, claim := c.do(http.MethodPost, base+"/participants/"+pid+"/claim", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	deviceToken := claim["deviceToken"].(string)
	assert.Equal(t, true, claim["participant"].(map[string]any)["isClaimed"])

	resp, body := c.do(http.MethodPost, base+"/participants/"+pid+"/claim", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_CLAIMED", body["error_code"])

	resp, body = c.do(http.MethodPost, base+"/participants/"+pid+"/session", map[string]string{"deviceToken": deviceToken}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	device := map[string]string{"X-Device-Token": deviceToken}
	resp, body = c.do(http.MethodPut, base+"/participants/"+pid+"/slots", map[string]any{"slots": []string{"d1_h9", "d0_h10", "d0_h10"}}, device)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, []any{"d0_h10", "d1_h9"}, body["slots"])

	resp, body = c.do(http.MethodPut, base+"/participants/"+pid+"/slots", map[string]any{"slots": []string{"d0_h9"}}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error_code"])

	resp, body = c.do(http.MethodPut, base+"/status", map[string]bool{"frozen": true}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "frozen", body["status"])

	resp, body = c.do(http.MethodPut, base+"/participants/"+pid+"/slots", map[string]any{"slots": []string{"d0_h9"}}, device)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "MEETING_FROZEN", body["error_code"])

	resp, body = c.do(http.MethodGet, base+"/best-slots", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])

	resp, body = c.do(http.MethodPost, base+"/finalize", map[string]string{"slotId": "d0_h10"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "d0_h10", body["finalizedSlotId"])

	resp, body = c.do(http.MethodPost, base+"/finalize", map[string]string{"slotId": "d0_h9"}, admin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_FINALIZED", body["error_code"])

	_, meeting = c.do(http.MethodGet, base, nil, nil)
	meta := meeting["meta"].(map[string]any)
	assert.Equal(t, "finalized", meta["status"])
	assert.Equal(t, "d0_h10", meta["finalizedSlotId"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{})
	meetingID, adminToken, participants := createMeeting(t, c, false)
	base := "/api/meetings/" + meetingID

	resp, body := c.do(http.MethodPost, base+"/admin", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error_code"])

	resp, _ = c.do(http.MethodPost, base+"/admin", nil, map[string]string{"X-Admin-Token": "f00d"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, base+"/admin", nil, map[string]string{"X-Admin-Token": adminToken})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = c.do(http.MethodDelete, base+"/participants/"+participants[1], nil, map[string]string{"X-Admin-Token": adminToken})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, meeting := c.do(http.MethodGet, base, nil, nil)
	assert.Len(t, meeting["participants"], 1)
}

func TestResetSessionAllowsReclaim(t *testing.T) {
	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{})
	meetingID, adminToken, participants := createMeeting(t, c, false)
	base := "/api/meetings/" + meetingID + "/participants/" + participants[0]

	resp, _ := c.do(http.MethodPost, base+"/claim", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodDelete, base+"/session", nil, map[string]string{"X-Admin-Token": adminToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, base+"/claim", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := c.do(http.MethodPost, base+"/force-claim", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["deviceToken"])
}

func TestCreateMeetingValidation(t *testing.T) {
	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{})

	resp, body := c.do(http.MethodPost, "/api/meetings", map[string]any{
		"title":            "",
		"dates":            []string{"not-a-date"},
		"participantNames": []string{},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error_code"])
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "title")
	assert.Contains(t, errs, "dates")
	assert.Contains(t, errs, "participantNames")
}

func TestMalformedBody(t *testing.T) {
	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{})
	req, err := http.NewRequest(http.MethodPost, c.srv.URL+"/api/meetings", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := c.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownMeetingAndRoute(t *testing.T) {
	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{})

	resp, body := c.do(http.MethodGet, "/api/meetings/nothere001", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error_code"])

	resp, body = c.do(http.MethodGet, "/api/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error_code"])
}

func TestGuestFlowAndRateLimit(t *testing.T) {
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	salt, err := ratelimit.NewDerivedSalt([]byte("test secret"))
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(clock.NowFunc()), salt, ratelimit.DefaultRules(), clock.NowFunc())

	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{Limiter: limiter})
	meetingID, adminToken, _ := createMeeting(t, c, true)
	base := "/api/meetings/" + meetingID
	origin := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	resp, body := c.do(http.MethodPost, base+"/guest-requests", map[string]string{"name": "Dana"}, origin)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	requestID := body["requestId"].(string)

	resp, body = c.do(http.MethodPost, base+"/guest-requests/"+requestID+"/approve", nil, map[string]string{"X-Admin-Token": adminToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Dana", body["participant"].(map[string]any)["name"])

	for i := 0; i < 2; i++ {
		resp, _ = c.do(http.MethodPost, base+"/guest-requests", map[string]string{"name": "Eve"}, origin)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	resp, body = c.do(http.MethodPost, base+"/guest-requests", map[string]string{"name": "Eve"}, origin)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body["error_code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = c.do(http.MethodPost, base+"/guest-requests", map[string]string{"name": "Eve"}, map[string]string{"X-Forwarded-For": "198.51.100.1"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	healthy := apihttp.NewRouter(apihttp.RouterConfig{})
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	failing := apihttp.NewRouter(apihttp.RouterConfig{Health: func(context.Context) error { return io.ErrUnexpectedEOF }})
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCompressedResponses(t *testing.T) {
	c, _ := newAPI(t, testfixtures.MeetingServiceDeps{})
	dates := make([]string, 14)
	for i := range dates {
		dates[i] = fmt.Sprintf("2026-04-%02d", i+1)
	}
	resp, body := c.do(http.MethodPost, "/api/meetings", map[string]any{
		"title":            "Offsite",
		"dates":            dates,
		"participantNames": []string{"Aiko"},
		"startHour":        0,
		"endHour":          24,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	req, err := http.NewRequest(http.MethodGet, c.srv.URL+"/api/meetings/"+body["meetingId"].(string)+"/heatmap", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	transport := &http.Transport{DisableCompression: true}
	resp, err = (&http.Client{Transport: transport}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}
