// Package contact records contact form submissions and forwards them to a
// webhook. A submission succeeds when either destination accepts it.
package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jonkersai/website/internal/errors"
	"github.com/jonkersai/website/internal/utils"
	"github.com/jonkersai/website/internal/validation"
	"github.com/jonkersai/website/recordstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	Table = "contact_requests"

	// ServiceAICallers is the only service the form asks about.
	ServiceAICallers = "ai-callers"

	DefaultRetries    = 2
	DefaultRetryDelay = time.Second
)

var (
	ErrPermissionDenied = fmt.Errorf("contact: permission denied: %w", apperrors.ErrForbidden)
	ErrInvalidInput     = fmt.Errorf("contact: rejected input: %w", apperrors.ErrInvalidInput)
	ErrNetwork          = errors.New("contact: network error")
	ErrSubmissionFailed = errors.New("contact: submission failed")
)

// Request is the contact form.
type Request struct {
	Name           string `json:"name" validate:"required,max=200"`
	Email          string `json:"email" validate:"required,email"`
	CompanyName    string `json:"company_name" validate:"required,max=200"`
	Problems       string `json:"problems" validate:"required"`
	AdditionalInfo string `json:"additional_info"`
}

// Outcome reports which destinations accepted a submission.
type Outcome struct {
	Stored    bool `json:"stored"`
	Delivered bool `json:"delivered"`
}

type webhookPayload struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Service        string  `json:"service"`
	CompanyName    string  `json:"company_name"`
	Problems       string  `json:"problems"`
	AdditionalInfo *string `json:"additional_info"`
	SubmittedAt    string  `json:"submitted_at"`
}

type Submitter struct {
	store      recordstore.Store
	webhookURL string
	retries    int
	delay      time.Duration
	httpClient *http.Client
	nowTime    func() time.Time
}

// SubmitterOption defines a function type to modify the Submitter instance.
type SubmitterOption func(*Submitter)

// WithRetries sets how many times a failed webhook call is repeated.
func WithRetries(n int) SubmitterOption {
	return func(s *Submitter) {
		s.retries = n
	}
}

// WithRetryDelay sets the fixed pause between webhook attempts.
func WithRetryDelay(d time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.delay = d
	}
}

func WithHTTPClient(hc *http.Client) SubmitterOption {
	return func(s *Submitter) {
		s.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SubmitterOption {
	return func(s *Submitter) {
		s.nowTime = nowFunc
	}
}

// NewSubmitter returns a Submitter. An empty webhookURL disables delivery.
func NewSubmitter(store recordstore.Store, webhookURL string, options ...SubmitterOption) (*Submitter, error) {
	if store == nil {
		return nil, errors.New("[contact.NewSubmitter] store is required")
	}
	s := &Submitter{
		store:      store,
		webhookURL: webhookURL,
		retries:    DefaultRetries,
		delay:      DefaultRetryDelay,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.retries < 0 {
		s.retries = 0
	}
	return s, nil
}

// Submit stores the request and always attempts webhook delivery as well.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Outcome, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	additional := utils.NilIfZero(req.AdditionalInfo)

	out := &Outcome{}
	_, storeErr := s.store.Insert(ctx, Table, recordstore.Row{
		"name":            req.Name,
		"email":           req.Email,
		"service":         ServiceAICallers,
		"company_name":    req.CompanyName,
		"problems":        req.Problems,
		"additional_info": additional,
	})
	if storeErr != nil {
		log.Err(storeErr).Str("email", req.Email).Msg("Storing contact request failed")
	} else {
		out.Stored = true
	}

	webhookErr := s.deliver(ctx, webhookPayload{
		Name:           req.Name,
		Email:          req.Email,
		Service:        ServiceAICallers,
		CompanyName:    req.CompanyName,
		Problems:       req.Problems,
		AdditionalInfo: additional,
		SubmittedAt:    s.nowTime().UTC().Format(time.RFC3339Nano),
	})
	if webhookErr != nil {
		log.Err(webhookErr).Str("email", req.Email).Msg("Contact webhook failed")
	} else {
		out.Delivered = true
	}

	if out.Stored || out.Delivered {
		return out, nil
	}
	return out, classify(storeErr, webhookErr)
}

// deliver posts payload, repeating failed attempts after a fixed delay.
func (s *Submitter) deliver(ctx context.Context, payload webhookPayload) error {
	if s.webhookURL == "" {
		return errors.New("webhook not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "[deliver] encode")
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			log.Debug().Int("attempt", attempt+1).Msg("Retrying contact webhook")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.delay):
			}
		}
		if lastErr = s.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (s *Submitter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[deliver] new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

// classify picks the error reported when neither destination accepted the
// request. Store codes win over transport failures.
func classify(storeErr, webhookErr error) error {
	var class error
	code := recordstore.CodeOf(storeErr)
	switch {
	case code == recordstore.CodeInsufficientPrivilege:
		class = ErrPermissionDenied
	case strings.HasPrefix(code, "23"):
		class = ErrInvalidInput
	case isTransport(storeErr) || isTransport(webhookErr):
		class = ErrNetwork
	default:
		class = ErrSubmissionFailed
	}
	return fmt.Errorf("%w (store: %v; webhook: %v)", class, storeErr, webhookErr)
}

func isTransport(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}
