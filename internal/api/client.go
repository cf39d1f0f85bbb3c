package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/magister-tools/magctl/internal/logger"
)

const userAgent = "magctl/1.0"

const dateFormat = "2006-01-02"

// Client talks to one school's Magister API with a bearer token.
//
// Network failures are retried up to three times with exponential backoff.
// HTTP error statuses are never retried here; 401 and 429 map to typed
// errors the caller handles deliberately.
type Client struct {
	school string
	token  string
	log    *logger.Logger
	http   *retryablehttp.Client

	// BaseURL is overridable for tests.
	BaseURL string

	// Resolved lazily from /account. For parent accounts studentID is the
	// first linked child, not the account holder.
	accountID  *int64
	studentID  *int64
	personName string
	isParent   bool
}

// NewClient creates an API client for a school.
func NewClient(school, token string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	// Retry transport errors only. Status-based handling (401, 429) is
	// policy, not plumbing, and lives with the caller.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	return &Client{
		school:  school,
		token:   token,
		log:     log,
		http:    rc,
		BaseURL: fmt.Sprintf("https://%s.magister.net/api", school),
	}
}

// PersonID returns the resolved student id, if the account has been fetched.
func (c *Client) PersonID() (int64, bool) {
	if c.studentID == nil {
		return 0, false
	}
	return *c.studentID, true
}

// PersonName returns the resolved student name.
func (c *Client) PersonName() string { return c.personName }

// IsParentAccount reports whether the logged-in account is a parent.
func (c *Client) IsParentAccount() bool { return c.isParent }

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("GET %s: %w", path, ErrTokenExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 60 * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &RateLimitError{RetryAfter: retryAfter}
	case resp.StatusCode >= 400:
		// Bodies can carry server internals; keep them out of the error.
		c.log.Debug("API error %d on %s: %s", resp.StatusCode, path, string(body))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	return body, nil
}

// Account fetches the account record and resolves the student identity.
// For parent accounts the first linked child becomes the active student.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	body, err := c.get(ctx, "/account", nil)
	if err != nil {
		return nil, err
	}
	var account Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}

	c.accountID = &account.Person.ID
	c.personName = account.Person.FullName()
	c.isParent = account.IsParent()

	if c.isParent {
		children, err := c.Children(ctx)
		if err == nil && len(children) > 0 {
			c.studentID = &children[0].ID
			c.personName = children[0].FullName()
		} else {
			c.studentID = c.accountID
		}
	} else {
		c.studentID = c.accountID
	}
	return &account, nil
}

// Children lists the students linked to a parent account. A non-parent
// account yields an empty list, not an error.
func (c *Client) Children(ctx context.Context) ([]Child, error) {
	if c.accountID == nil {
		if _, err := c.Account(ctx); err != nil {
			return nil, err
		}
	}
	body, err := c.get(ctx, fmt.Sprintf("/personen/%d/kinderen", *c.accountID), nil)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, nil
		}
		return nil, err
	}
	children, err := decodeItems[Child](body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode children: %w", err)
	}
	return children, nil
}

func (c *Client) ensureStudentID(ctx context.Context) (int64, error) {
	if c.studentID != nil {
		return *c.studentID, nil
	}
	if _, err := c.Account(ctx); err != nil {
		return 0, err
	}
	return *c.studentID, nil
}

// Appointments lists calendar entries in [start, end], inclusive.
func (c *Client) Appointments(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	studentID, err := c.ensureStudentID(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("van", start.Format(dateFormat))
	query.Set("tot", end.Format(dateFormat))

	body, err := c.get(ctx, fmt.Sprintf("/personen/%d/afspraken", studentID), query)
	if err != nil {
		return nil, err
	}
	appointments, err := decodeItems[Appointment](body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

// Homework lists appointments that carry homework in [start, end].
func (c *Client) Homework(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	appointments, err := c.Appointments(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var withHomework []Appointment
	for _, a := range appointments {
		if a.HasHomework() {
			withHomework = append(withHomework, a)
		}
	}
	return withHomework, nil
}

// RecentGrades lists the latest grades, newest first.
func (c *Client) RecentGrades(ctx context.Context, limit int) ([]Grade, error) {
	studentID, err := c.ensureStudentID(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	query := url.Values{}
	query.Set("top", strconv.Itoa(limit))

	body, err := c.get(ctx, fmt.Sprintf("/personen/%d/cijfers/laatste", studentID), query)
	if err != nil {
		return nil, err
	}
	grades, err := decodeItems[Grade](body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode grades: %w", err)
	}
	return grades, nil
}

// Schedule lists appointments for one day.
func (c *Client) Schedule(ctx context.Context, day time.Time) ([]Appointment, error) {
	return c.Appointments(ctx, day, day)
}

// Appointment fetches one appointment with full details, including
// attachments that the list endpoint omits.
func (c *Client) Appointment(ctx context.Context, id int64) (*Appointment, error) {
	studentID, err := c.ensureStudentID(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, fmt.Sprintf("/personen/%d/afspraken/%d", studentID, id), nil)
	if err != nil {
		return nil, err
	}
	var appointment Appointment
	if err := json.Unmarshal(body, &appointment); err != nil {
		return nil, fmt.Errorf("failed to decode appointment: %w", err)
	}
	return &appointment, nil
}
