package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
)

// maxBodyBytes caps how much of a failure response is kept for the logs
const maxBodyBytes = 4 << 10

// Config captures the job-complete callback settings
type Config struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Notifier tells the exam service that a job finished. It performs a single
// attempt per call and never retries.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// New builds a Notifier. The URL must be absolute.
func New(cfg Config) (*Notifier, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("notifier url is required")
	}
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("notifier url must be absolute: %q", endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		url:    endpoint,
		client: hc,
		logger: logger,
	}, nil
}

// Notify posts exam_id and message as a form and classifies the result.
func (n *Notifier) Notify(ctx context.Context, examID domain.ID, result domain.CompletionResult) domain.NotificationOutcome {
	form := url.Values{}
	form.Set("exam_id", examID.String())
	form.Set("message", result.Message)

	outcome := n.post(ctx, form)

	switch outcome.Kind {
	case domain.OutcomeDelivered:
		n.logger.Info("Notification sent",
			slog.String("exam_id", examID.String()),
		)
	case domain.OutcomeFailedStatus:
		n.logger.Error("Failed to send notification",
			slog.String("exam_id", examID.String()),
			slog.Int("status", outcome.StatusCode),
			slog.String("body", outcome.Body),
		)
	default:
		n.logger.Error("Error sending notification",
			slog.String("exam_id", examID.String()),
			slog.Any("error", outcome.Err),
		)
	}

	return outcome
}

func (n *Notifier) post(ctx context.Context, form url.Values) domain.NotificationOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NotificationOutcome{
			Kind: domain.OutcomeTransportError,
			Err:  fmt.Errorf("create notification request: %w", err),
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return domain.NotificationOutcome{
			Kind: domain.OutcomeTransportError,
			Err:  fmt.Errorf("notification request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return domain.NotificationOutcome{
			Kind:       domain.OutcomeDelivered,
			StatusCode: resp.StatusCode,
		}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	return domain.NotificationOutcome{
		Kind:       domain.OutcomeFailedStatus,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
