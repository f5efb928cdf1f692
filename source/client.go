// ABOUTME: HTTP client for the Doctolib weekly appointments feed
// ABOUTME: Fetches one week, drops deleted or incomplete records and normalizes fields
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"github.com/rs/zerolog"

	"github.com/harperreed/doctosync/config"
	"github.com/harperreed/doctosync/models"
)

const requestTimeout = 10 * time.Second

// rawAppointment mirrors the fields of a feed record the sync reads.
type rawAppointment struct {
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	NewPatient bool    `json:"new_patient"`
	Status     *string `json:"status"`
}

type weekResponse struct {
	Data []rawAppointment `json:"data"`
}

// StatusError is returned when the feed answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scheduling feed returned %s", e.Status)
}

// Client reads appointments from the scheduling source.
type Client struct {
	URL        string
	AgendaIDs  []string
	DateFormat string
	CookiePath string
	UserAgent  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewClient creates a feed client from the api section of the config.
func NewClient(cfg config.APIConfig, logger zerolog.Logger) *Client {
	return &Client{
		URL:        cfg.URL,
		AgendaIDs:  cfg.AgendaIDs,
		DateFormat: cfg.DateFormat,
		CookiePath: cfg.CookiePath,
		UserAgent:  cfg.UserAgent,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		Logger:     logger,
	}
}

// FetchWeek returns the appointments of the seven days starting at weekStart.
func (c *Client) FetchWeek(ctx context.Context, weekStart time.Time) ([]models.Appointment, error) {
	req, err := c.newWeekRequest(ctx, weekStart)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch appointments: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var body weekResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}

	appts := clean(body.Data)
	c.Logger.Debug().
		Str("week", weekStart.Format(time.DateOnly)).
		Int("received", len(body.Data)).
		Int("kept", len(appts)).
		Msg("fetched appointments")

	return appts, nil
}

func (c *Client) newWeekRequest(ctx context.Context, weekStart time.Time) (*http.Request, error) {
	start := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, weekStart.Location())
	end := start.AddDate(0, 0, 7).Add(-time.Second)

	dateFormat := c.DateFormat
	if dateFormat == "" {
		dateFormat = config.DefaultDateFormat
	}

	params := url.Values{}
	for _, id := range c.AgendaIDs {
		params.Add("agenda_ids", id)
	}
	params.Set("start_date", strftime.Format(dateFormat, start))
	params.Set("end_date", strftime.Format(dateFormat, end))
	params.Set("view", "week")
	params.Set("include_patients", "true")

	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	query := u.Query()
	for k, vs := range params {
		query[k] = vs
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	userAgent := c.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	cookies, err := LoadCookies(c.CookiePath)
	if err != nil {
		return nil, err
	}
	if len(cookies) == 0 {
		c.Logger.Warn().Str("cookie_path", c.CookiePath).Msg("no cookies loaded")
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: requestTimeout}
}

// clean drops deleted appointments and records missing a start or end time,
// defaulting the status to confirmed.
func clean(raw []rawAppointment) []models.Appointment {
	out := make([]models.Appointment, 0, len(raw))
	for _, r := range raw {
		status := models.StatusConfirmed
		if r.Status != nil && strings.TrimSpace(*r.Status) != "" {
			status = *r.Status
		}
		appt := models.Appointment{
			StartTime:  r.StartDate,
			EndTime:    r.EndDate,
			NewPatient: r.NewPatient,
			Status:     status,
		}
		if appt.IsDeleted() || appt.StartTime == "" || appt.EndTime == "" {
			continue
		}
		out = append(out, appt)
	}
	return out
}
