package chongbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

var (
	// ErrSourceUnavailable indicates the Raid Helper event listing
	// could not be fetched at all. Fatal to a signup check run.
	ErrSourceUnavailable = errors.New("raid helper api unavailable")
)

// StatusError carries the status code and response body of a non-2xx
// Raid Helper API response, for diagnostics.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Event is one scheduled raid, as returned by the Raid Helper API.
// StartTime is unix seconds - always seconds, never milliseconds.
type Event struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	StartTime int64    `json:"startTime"`
	ChannelID string   `json:"channelId"`
	SignUps   []Signup `json:"signUps"`
}

// Signup is one member's registration for an Event. Entries with an
// empty UserID carry no member identity and are skipped during
// reconciliation.
type Signup struct {
	UserID string `json:"userId"`
}

type eventListing struct {
	PostedEvents []Event `json:"postedEvents"`
}

// RaidHelperClient fetches upcoming events and their sign-up rosters
// from the Raid Helper API. It's read-only: the only side effect is
// network I/O.
type RaidHelperClient struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	requestTimeout time.Duration

	// limiter paces the per-event detail fetches; Raid Helper starts
	// rejecting requests if they come in back to back
	limiter *rate.Limiter

	logger *slog.Logger

	// now is the clock used for the event time window, injectable
	// for tests
	now func() time.Time
}

func newRaidHelperClient(
	config *RaidHelperConfig,
	httpClient *http.Client,
	logger *slog.Logger,
) *RaidHelperClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	fetchInterval := config.FetchInterval
	if fetchInterval <= 0 {
		fetchInterval = DefaultEventFetchInterval
	}
	return &RaidHelperClient{
		baseURL:        config.BaseURL,
		apiKey:         config.APIKey,
		httpClient:     httpClient,
		requestTimeout: config.RequestTimeout,
		limiter:        rate.NewLimiter(rate.Every(fetchInterval), 1),
		logger:         logger.With(loggerNameKey, "raid_helper"),
		now:            time.Now,
	}
}

// get performs an authenticated GET against the Raid Helper API and
// decodes the JSON response into out. Non-2xx responses return a
// StatusError.
func (c *RaidHelperClient) get(ctx context.Context, endpoint string, out any) error {
	if c.apiKey == "" {
		return errors.New("raid helper api key not configured")
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+endpoint,
		http.NoBody,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "raid helper request", "endpoint", endpoint)

	rv, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = rv.Body.Close()
	}()

	body, err := io.ReadAll(rv.Body)
	if err != nil {
		return err
	}

	if rv.StatusCode < 200 || rv.StatusCode > 299 {
		return &StatusError{Code: rv.StatusCode, Body: truncate(string(body), 512)}
	}

	return json.Unmarshal(body, out)
}

// FetchEvent fetches a single event's full detail, including its
// sign-up roster, by event ID.
func (c *RaidHelperClient) FetchEvent(ctx context.Context, eventID string) (Event, error) {
	var event Event
	err := c.get(ctx, "/v2/events/"+eventID, &event)
	return event, err
}

// FetchUpcomingEvents returns the events starting within the next
// windowDays, sorted ascending by start time, each with its sign-up
// roster populated.
//
// The time window is passed upstream as query parameters, but the API
// has been observed to ignore them, so results are re-filtered locally
// against the same window. Events whose detail fetch fails are kept
// with an empty roster rather than dropped.
//
// A failure of the top-level listing call returns ErrSourceUnavailable;
// no partial results are synthesized.
func (c *RaidHelperClient) FetchUpcomingEvents(
	ctx context.Context,
	serverID string,
	windowDays int,
) ([]Event, error) {
	if windowDays <= 0 {
		windowDays = DefaultEventWindowDays
	}
	now := c.now().Unix()
	windowEnd := now + int64(windowDays)*24*60*60

	params := url.Values{}
	params.Set("StartTimeFilter", strconv.FormatInt(now, 10))
	params.Set("EndTimeFilter", strconv.FormatInt(windowEnd, 10))
	params.Set("IncludeSignUps", "true")

	endpoint := fmt.Sprintf("/v3/servers/%s/events?%s", serverID, params.Encode())

	var listing eventListing
	if err := c.get(ctx, endpoint, &listing); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	events := listing.PostedEvents
	originalCount := len(events)

	// The API has ignored its own time filters before; don't trust it
	filtered := make([]Event, 0, len(events))
	for _, event := range events {
		if event.StartTime >= now && event.StartTime <= windowEnd {
			filtered = append(filtered, event)
		}
	}
	events = filtered

	sort.SliceStable(
		events, func(i, j int) bool {
			return events[i].StartTime < events[j].StartTime
		},
	)

	c.logger.InfoContext(
		ctx,
		"fetched upcoming events",
		"window_days", windowDays,
		"listed", originalCount,
		"in_window", len(events),
	)

	// The listing doesn't reliably embed sign-up data, so fetch each
	// event's detail individually, paced by the limiter
	eventsWithSignups := make([]Event, 0, len(events))
	for i, event := range events {
		if i > 0 {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		detail, err := c.FetchEvent(ctx, event.ID)
		if err != nil {
			// fail open: the event still exists, we just don't know
			// who signed up
			c.logger.ErrorContext(
				ctx,
				"error fetching event signups",
				"event_id", event.ID,
				"event_title", event.Title,
				tint.Err(err),
			)
			event.SignUps = []Signup{}
			eventsWithSignups = append(eventsWithSignups, event)
			continue
		}
		eventsWithSignups = append(eventsWithSignups, detail)
	}

	return eventsWithSignups, nil
}

// extractSignedUpUserIDs returns the set of member IDs present in the
// given signups. Signups with no user ID are skipped.
func extractSignedUpUserIDs(signups []Signup) map[string]struct{} {
	userIDs := make(map[string]struct{}, len(signups))
	for _, signup := range signups {
		if signup.UserID != "" {
			userIDs[signup.UserID] = struct{}{}
		}
	}
	return userIDs
}
