package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personachat/internal/agent"
	"personachat/internal/config"
	"personachat/internal/models"
)

type fakeIdentities struct {
	user *models.User
	err  error
}

func (f *fakeIdentities) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func newTestTools(t *testing.T, handler http.HandlerFunc, now time.Time) (*Tools, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.CalendarConfig{
		APIBase:        server.URL,
		APIKey:         "test-key",
		EventTypeID:    7,
		MaxRetries:     0,
		TimeoutSeconds: 5,
	})
	return &Tools{
		client:     client,
		identities: &fakeIdentities{user: &models.User{ID: 1, Username: "sam", DisplayName: "Sam Chen", Email: "sam@example.com"}},
		loc:        time.UTC,
		minLead:    24 * time.Hour,
		now:        func() time.Time { return now },
	}, server
}

func slotsHandler(t *testing.T, times ...time.Time) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slots/available":
			slots := make([]map[string]string, 0, len(times))
			for _, ts := range times {
				slots = append(slots, map[string]string{"time": ts.UTC().Format(time.RFC3339)})
			}
			resp := map[string]any{
				"status": "success",
				"data":   map[string]any{"slots": map[string]any{"2026-09-10": slots}},
			}
			json.NewEncoder(w).Encode(resp)
		case "/bookings":
			json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data": map[string]any{
					"id":    99,
					"uid":   "bk_abc123",
					"title": "15 Min Meeting",
					"start": times[0].UTC().Format(time.RFC3339),
				},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestBookMeetingRejectsShortNotice(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t), now)

	out, err := tools.runBookMeeting(context.Background(), &bookingParams{
		Datetime:      "2026-09-01T12:00:00.000Z",
		AttendeeName:  "Ada",
		AttendeeEmail: "ada@example.com",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "24 hours")
	assert.Contains(t, out, "12.0 hours")
}

func TestBookMeetingRejectsNonUTCTimestamp(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t), now)

	out, err := tools.runBookMeeting(context.Background(), &bookingParams{
		Datetime:      "2026-09-10T12:00:00+10:00",
		AttendeeName:  "Ada",
		AttendeeEmail: "ada@example.com",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "Invalid datetime")
}

func TestBookMeetingRequiresAttendeeDetails(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t), now)

	out, err := tools.runBookMeeting(context.Background(), &bookingParams{
		Datetime: "2026-09-10T12:00:00.000Z",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "name and email")
}

func TestBookMeetingRejectsStaleSlot(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	other := time.Date(2026, 9, 10, 13, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t, other), now)

	out, err := tools.runBookMeeting(context.Background(), &bookingParams{
		Datetime:      "2026-09-10T12:00:00.000Z",
		AttendeeName:  "Ada",
		AttendeeEmail: "ada@example.com",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "no longer available")
}

func TestBookMeetingSuccess(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	target := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t, target), now)

	out, err := tools.runBookMeeting(context.Background(), &bookingParams{
		Datetime:      "2026-09-10T12:00:00.000Z",
		AttendeeName:  "Ada",
		AttendeeEmail: "ada@example.com",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "Meeting booked")
	assert.Contains(t, out, "bk_abc123")
	assert.Contains(t, out, "ada@example.com")
}

func TestAvailabilityToolListsSlots(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t,
		time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 10, 12, 15, 0, 0, time.UTC),
	), now)

	out, err := tools.runAvailability(context.Background(), &availabilityParams{})

	require.NoError(t, err)
	assert.Contains(t, out, "Technical details")
	assert.Contains(t, out, "2026-09-10T12:00:00.000Z")
}

func TestAvailabilityToolRejectsBadDates(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t), now)

	out, err := tools.runAvailability(context.Background(), &availabilityParams{StartDate: "next tuesday"})

	require.NoError(t, err)
	assert.Contains(t, out, "YYYY-MM-DD")
}

func TestCurrentDateTimePayload(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t), now)

	out, err := tools.runCurrentDateTime(context.Background(), &emptyParams{})

	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "2026-09-01", payload["currentDate"])
	assert.Equal(t, "2026-09-03", payload["safeStartDate"])
	assert.Equal(t, "UTC", payload["timezone"])
}

func TestCallerIdentityTool(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t), now)

	ctx := agent.WithTurnUser(context.Background(), 1)
	out, err := tools.runCallerIdentity(ctx, &emptyParams{})

	require.NoError(t, err)
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		HasName  bool   `json:"has_name"`
		HasEmail bool   `json:"has_email"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "Sam Chen", payload.Name)
	assert.Equal(t, "sam@example.com", payload.Email)
	assert.True(t, payload.HasName)
	assert.True(t, payload.HasEmail)
}

func TestCallerIdentityWithoutTurnUser(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, slotsHandler(t), now)

	out, err := tools.runCallerIdentity(context.Background(), &emptyParams{})

	require.NoError(t, err)
	assert.Contains(t, out, "not authenticated")
}

func TestAvailabilityToolSurvivesAPIFailure(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tools, _ := newTestTools(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}, now)

	out, err := tools.runAvailability(context.Background(), &availabilityParams{})

	require.NoError(t, err)
	assert.Contains(t, out, "try again")
}
