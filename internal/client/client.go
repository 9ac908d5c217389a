// Package client talks to the booking API on behalf of a Session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/coworking-booking-engine/internal/booking"
	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

const DefaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	// Token, when set, is sent as a bearer token on commit.
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type checkRequest struct {
	ListingID    string `json:"listingId"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	CheckInTime  string `json:"checkInTime"`
	CheckOutTime string `json:"checkOutTime"`
}

type checkResponse struct {
	Available *bool `json:"available"`
}

// CheckAvailability treats a missing available field as available.
func (c *Client) CheckAvailability(ctx context.Context, listing domain.Listing, w domain.BookingWindow) (bool, error) {
	var resp checkResponse
	err := c.post(ctx, "/bookings/check-availability", checkRequest{
		ListingID:    listing.ID,
		StartDate:    w.StartDate,
		EndDate:      w.EndDate,
		CheckInTime:  w.CheckInTime,
		CheckOutTime: w.CheckOutTime,
	}, &resp, false)
	if err != nil {
		return false, err
	}
	return resp.Available == nil || *resp.Available, nil
}

// Commit submits the intent. Conflicts come back as domain.ErrSlotTaken and
// transport or 5xx failures as domain.ErrUpstreamUnavailable.
func (c *Client) Commit(ctx context.Context, intent domain.BookingIntent) (booking.CommitResult, error) {
	var res booking.CommitResult
	if err := c.post(ctx, "/bookings/intent", intent, &res, true); err != nil {
		return booking.CommitResult{}, err
	}
	if res.BookingID == "" && res.CheckoutURL == "" {
		return booking.CommitResult{}, errors.Mark(errors.New("commit response has neither bookingId nor checkoutUrl"), domain.ErrUpstreamUnavailable)
	}
	return res, nil
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}, auth bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "POST %s", path), domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "read %s response", path), domain.ErrUpstreamUnavailable)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Mark(errors.Wrapf(err, "decode %s response", path), domain.ErrUpstreamUnavailable)
		}
		return nil
	}
	return statusError(resp.StatusCode, raw)
}

func statusError(status int, raw []byte) error {
	var body apiError
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrAuthenticationRequired
	case status == http.StatusConflict && body.Error == "unavailable":
		return domain.ErrUnavailable
	case status == http.StatusConflict && body.Error == "intent_mismatch":
		return domain.ErrIntentMismatch
	case status == http.StatusConflict && body.Error == "request_in_progress":
		return domain.ErrCommitInProgress
	case status == http.StatusConflict:
		return domain.ErrSlotTaken
	case status == http.StatusUnprocessableEntity && body.Error == "capacity_exceeded":
		return errors.Wrap(domain.ErrCapacityExceeded, msg)
	case status == http.StatusUnprocessableEntity:
		return errors.Wrap(domain.ErrInvalidWindow, msg)
	case status == http.StatusGone && body.Error == "intent_consumed":
		return domain.ErrIntentConsumed
	case status == http.StatusGone:
		return errors.Wrap(domain.ErrIntentExpired, msg)
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return errors.Mark(errors.New(msg), domain.ErrUpstreamUnavailable)
	case status == http.StatusNotFound:
		return errors.Wrap(domain.ErrNotFound, msg)
	default:
		return errors.Wrap(domain.ErrInvalidInput, msg)
	}
}

var (
	_ booking.Checker   = (*Client)(nil)
	_ booking.Committer = (*Client)(nil)
)
