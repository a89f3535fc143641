package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"personachat/internal/agent"
	"personachat/internal/config"
	"personachat/internal/models"
)

// IdentityResolver looks up the profile of the authenticated caller. The
// account service satisfies it.
type IdentityResolver interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Tools is the calendar tool bridge handed to the agent runner. Failures
// inside a tool are reported as descriptive strings the agent relays
// conversationally; they never abort the turn.
type Tools struct {
	client     *Client
	identities IdentityResolver
	loc        *time.Location
	minLead    time.Duration
	now        func() time.Time
}

// NewTools builds the bridge. The timezone names the persona's local zone
// used for displaying slots.
func NewTools(client *Client, identities IdentityResolver, cfg config.CalendarConfig, timezone string) (*Tools, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	return &Tools{
		client:     client,
		identities: identities,
		loc:        loc,
		minLead:    time.Duration(cfg.MinLeadHours) * time.Hour,
		now:        time.Now,
	}, nil
}

// All returns the tool set for the agent runner.
func (t *Tools) All() []tool.BaseTool {
	return []tool.BaseTool{
		t.currentDateTimeTool(),
		t.availabilityTool(),
		t.bookMeetingTool(),
		t.callerIdentityTool(),
	}
}

func (t *Tools) currentDateTimeTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "get_current_datetime",
		Desc: "Get the current date and time in the meeting host's timezone. " +
			"Call this to know what 'today' is before checking availability or booking.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
	return utils.NewTool(info, t.runCurrentDateTime)
}

type emptyParams struct{}

func (t *Tools) runCurrentDateTime(ctx context.Context, params *emptyParams) (string, error) {
	now := t.now().In(t.loc)
	// Safe window: start past the lead-time rule with a day of slack.
	safeStart := now.Add(t.minLead + 24*time.Hour)
	payload, err := json.Marshal(map[string]string{
		"currentDate":      now.Format("2006-01-02"),
		"currentTime":      now.Format("15:04:05"),
		"timezone":         t.loc.String(),
		"safeStartDate":    safeStart.Format("2006-01-02"),
		"suggestedEndDate": safeStart.Add(14 * 24 * time.Hour).Format("2006-01-02"),
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

type availabilityParams struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func (t *Tools) availabilityTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "check_meeting_availability",
		Desc: "Check available time slots for 15-minute meetings. By default checks the " +
			"next two weeks starting just past the minimum-notice window. Only provide " +
			"dates when the visitor asks for a specific range.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"start_date": {
				Desc:     "Optional start date in YYYY-MM-DD format.",
				Type:     schema.String,
				Required: false,
			},
			"end_date": {
				Desc:     "Optional end date in YYYY-MM-DD format.",
				Type:     schema.String,
				Required: false,
			},
		}),
	}
	return utils.NewTool(info, t.runAvailability)
}

func (t *Tools) runAvailability(ctx context.Context, params *availabilityParams) (string, error) {
	now := t.now()

	// Default window: minimum notice plus an hour of buffer, two weeks long.
	start := now.Add(t.minLead + time.Hour)
	if params != nil && params.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", params.StartDate)
		if err != nil {
			return fmt.Sprintf("I couldn't read the start date %q - please use YYYY-MM-DD format.", params.StartDate), nil
		}
		start = parsed
	}
	end := start.Add(14 * 24 * time.Hour)
	if params != nil && params.EndDate != "" {
		parsed, err := time.Parse("2006-01-02", params.EndDate)
		if err != nil {
			return fmt.Sprintf("I couldn't read the end date %q - please use YYYY-MM-DD format.", params.EndDate), nil
		}
		end = parsed.Add(24*time.Hour - time.Second)
	}

	slots, err := t.client.AvailableSlots(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Msg("availability lookup failed")
		return "I couldn't check availability just now. Please try again in a moment.", nil
	}
	if len(slots) == 0 {
		return fmt.Sprintf("No available slots found between %s and %s. All slots may be inside the "+
			"minimum notice period, or the calendar is fully booked for that range.",
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)), nil
	}
	return formatAvailability(slots, t.loc).ForAgent(), nil
}

type bookingParams struct {
	Datetime         string `json:"datetime"`
	AttendeeName     string `json:"attendee_name"`
	AttendeeEmail    string `json:"attendee_email"`
	AttendeeTimezone string `json:"attendee_timezone,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

func (t *Tools) bookMeetingTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "book_meeting",
		Desc: "Book a 15-minute meeting at a specific time. Always confirm the attendee name " +
			"and email with the visitor first, and use the EXACT UTC timestamp from the " +
			"availability results - never construct or convert timestamps.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"datetime": {
				Desc:     "Meeting start - the exact UTC timestamp from check_meeting_availability, e.g. \"2025-11-24T01:00:00.000Z\".",
				Type:     schema.String,
				Required: true,
			},
			"attendee_name": {
				Desc:     "Full name of the person booking the meeting.",
				Type:     schema.String,
				Required: true,
			},
			"attendee_email": {
				Desc:     "Email address of the person booking the meeting.",
				Type:     schema.String,
				Required: true,
			},
			"attendee_timezone": {
				Desc:     "IANA timezone of the attendee. Defaults to the host's timezone.",
				Type:     schema.String,
				Required: false,
			},
			"notes": {
				Desc:     "Optional notes or agenda for the meeting.",
				Type:     schema.String,
				Required: false,
			},
		}),
	}
	return utils.NewTool(info, t.runBookMeeting)
}

func (t *Tools) runBookMeeting(ctx context.Context, params *bookingParams) (string, error) {
	if params == nil || params.Datetime == "" {
		return "A meeting time is required. Check availability first and use one of the listed UTC timestamps.", nil
	}
	if strings.TrimSpace(params.AttendeeName) == "" || strings.TrimSpace(params.AttendeeEmail) == "" {
		return "I need the attendee's name and email before booking. Please confirm them with the visitor.", nil
	}
	if !strings.HasSuffix(params.Datetime, "Z") {
		return fmt.Sprintf("Invalid datetime %q: the time must be the exact UTC timestamp with a \"Z\" suffix "+
			"from the availability results, e.g. \"2025-11-24T01:00:00.000Z\".", params.Datetime), nil
	}
	start, err := time.Parse(time.RFC3339, params.Datetime)
	if err != nil {
		return fmt.Sprintf("Invalid datetime %q: not a valid timestamp. Copy the exact UTC value "+
			"from the availability results.", params.Datetime), nil
	}

	attendeeZone := params.AttendeeTimezone
	loc := t.loc
	if attendeeZone != "" {
		if parsed, err := time.LoadLocation(attendeeZone); err == nil {
			loc = parsed
		}
	}

	// Minimum-notice rule.
	until := start.Sub(t.now())
	if until < t.minLead {
		return fmt.Sprintf("I can't book meetings less than %d hours in advance. The requested time (%s) "+
			"is only %.1f hours away. Please pick a later slot.",
			int(t.minLead.Hours()), start.In(loc).Format("Monday, 2 January 2006 at 3:04pm"), until.Hours()), nil
	}

	// Re-validate the slot right before committing; another booking may
	// have taken it since availability was shown.
	slots, err := t.client.AvailableSlots(ctx, start.Add(-30*time.Minute), start.Add(30*time.Minute))
	if err != nil {
		log.Error().Err(err).Msg("pre-booking availability check failed")
		return "I couldn't verify the slot is still open. Please try again in a moment.", nil
	}
	if !slotListed(slots, start) {
		return fmt.Sprintf("The requested time (%s) is no longer available - it may have just been booked. "+
			"Please check availability again and choose a different slot.",
			start.In(loc).Format("Monday, 2 January 2006 at 3:04pm")), nil
	}

	metadata := map[string]string{"source": "personachat"}
	if userID, ok := agent.TurnUserFromContext(ctx); ok {
		metadata["userId"] = fmt.Sprintf("%d", userID)
	}
	if params.Notes != "" {
		metadata["notes"] = params.Notes
	}

	booking, err := t.client.CreateBooking(ctx, BookingRequest{
		Start: start,
		Attendee: Attendee{
			Name:     params.AttendeeName,
			Email:    params.AttendeeEmail,
			TimeZone: loc.String(),
		},
		Metadata: metadata,
	})
	if err != nil {
		log.Error().Err(err).Msg("booking failed")
		return "I ran into an issue creating the booking - the slot may no longer be available. " +
			"Please check availability again.", nil
	}

	log.Info().Str("uid", booking.UID).Time("start", booking.Start).Msg("meeting booked")
	return fmt.Sprintf("Meeting booked!\n\n**Details:**\n- Date & time: %s\n- Duration: 15 minutes\n"+
		"- Attendee: %s (%s)\n- Booking ID: %s\n\nA confirmation email with the calendar invite is on its way to %s.",
		booking.Start.In(loc).Format("Monday, 2 January 2006 at 3:04pm"),
		params.AttendeeName, params.AttendeeEmail, booking.UID, params.AttendeeEmail), nil
}

func slotListed(slots map[string][]Slot, target time.Time) bool {
	for _, daySlots := range slots {
		for _, s := range daySlots {
			if s.Time.Equal(target) {
				return true
			}
		}
	}
	return false
}

func (t *Tools) callerIdentityTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "get_caller_identity",
		Desc: "Get the authenticated visitor's name and email to pre-fill attendee details. " +
			"Always ask the visitor to confirm these before booking.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
	return utils.NewTool(info, t.runCallerIdentity)
}

func (t *Tools) runCallerIdentity(ctx context.Context, params *emptyParams) (string, error) {
	userID, ok := agent.TurnUserFromContext(ctx)
	if !ok {
		return identityPayload("", "", "visitor not authenticated"), nil
	}
	user, err := t.identities.GetUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("identity lookup failed")
		return identityPayload("", "", "could not retrieve visitor details"), nil
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	return identityPayload(name, user.Email, ""), nil
}

func identityPayload(name, email, errMsg string) string {
	payload := map[string]any{
		"name":      name,
		"email":     email,
		"has_name":  name != "",
		"has_email": email != "",
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	data, _ := json.Marshal(payload)
	return string(data)
}
