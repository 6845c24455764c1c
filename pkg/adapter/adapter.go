package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

// CredentialSource resolves decrypted credentials for an integration. It is
// implemented by the onboard layer on top of the credential vault.
type CredentialSource interface {
	Credentials(ctx context.Context, integrationID uuid.UUID) (map[string]any, error)
}

// StatusReporter receives adapter-observed integration state changes.
// Throttling marks an integration degraded; broken credentials mark it
// unhealthy and raise an alert.
type StatusReporter interface {
	ReportDegraded(ctx context.Context, integrationID uuid.UUID, reason string)
	ReportUnhealthy(ctx context.Context, integrationID uuid.UUID, reason string)
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Outcome records the result of one upstream call for the health monitor's
// rolling window.
type Outcome struct {
	At      time.Time
	OK      bool
	Kind    types.Kind
	Latency time.Duration
}

const outcomeWindowCap = 256

// Adapter is a rate-limit aware HTTP client for one integration. Backoff
// state is scoped per instance so one tenant's throttling never delays
// another's calls.
type Adapter struct {
	service       string
	integrationID uuid.UUID
	baseURL       string

	client   *http.Client
	policy   RetryPolicy
	creds    CredentialSource
	reporter StatusReporter
	logger   *zap.Logger

	mu       sync.Mutex
	outcomes []Outcome
}

func New(service string, integrationID uuid.UUID, baseURL string, policy RetryPolicy,
	creds CredentialSource, reporter StatusReporter, logger *zap.Logger) *Adapter {
	return &Adapter{
		service:       service,
		integrationID: integrationID,
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
		policy:        policy,
		creds:         creds,
		reporter:      reporter,
		logger:        logger.Named("adapter").With(zap.String("service", service)),
	}
}

func (a *Adapter) Service() string          { return a.service }
func (a *Adapter) IntegrationID() uuid.UUID { return a.integrationID }

// Call performs req against the upstream API. Rate-limit and transient
// responses are retried with exponential backoff up to the policy limit;
// authentication failures are never retried.
func (a *Adapter) Call(ctx context.Context, req Request) (*Response, error) {
	cred, err := a.creds.Credentials(ctx, a.integrationID)
	if err != nil {
		if types.IsKind(err, types.KindIntegrity) {
			a.reporter.ReportUnhealthy(ctx, a.integrationID, "credentials unusable: "+err.Error())
		}
		return nil, err
	}
	token, _ := cred["token"].(string)

	var lastErr error
	for attempt := 0; attempt <= a.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.policy.backoffFor(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		resp, err := a.do(ctx, req, token)
		latency := time.Since(start)

		switch {
		case err != nil:
			lastErr = types.WrapFault(types.KindTransient, "request failed", err)
			a.record(Outcome{At: start, Kind: types.KindTransient, Latency: latency})
			callCounter.WithLabelValues(a.service, "transient").Inc()

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			a.record(Outcome{At: start, Kind: types.KindAuthentication, Latency: latency})
			callCounter.WithLabelValues(a.service, "authentication").Inc()
			a.reporter.ReportUnhealthy(ctx, a.integrationID,
				fmt.Sprintf("authentication failed with status %d", resp.StatusCode))
			return nil, types.Faultf(types.KindAuthentication,
				"%s returned status %d", a.service, resp.StatusCode)

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = types.Faultf(types.KindRateLimit, "%s rate limit exceeded", a.service)
			a.record(Outcome{At: start, Kind: types.KindRateLimit, Latency: latency})
			callCounter.WithLabelValues(a.service, "rate_limit").Inc()

		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = types.Faultf(types.KindTransient, "%s returned status %d", a.service, resp.StatusCode)
			a.record(Outcome{At: start, Kind: types.KindTransient, Latency: latency})
			callCounter.WithLabelValues(a.service, "transient").Inc()

		default:
			a.record(Outcome{At: start, OK: true, Latency: latency})
			callCounter.WithLabelValues(a.service, "success").Inc()
			callLatency.WithLabelValues(a.service).Observe(latency.Seconds())
			return resp, nil
		}
	}

	if types.IsKind(lastErr, types.KindRateLimit) {
		a.reporter.ReportDegraded(ctx, a.integrationID, "rate limit retries exhausted")
	}
	return nil, lastErr
}

func (a *Adapter) do(ctx context.Context, req Request, token string) (*Response, error) {
	u := a.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{StatusCode: res.StatusCode, Body: data, Header: res.Header}, nil
}

func (a *Adapter) record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, o)
	if len(a.outcomes) > outcomeWindowCap {
		a.outcomes = a.outcomes[len(a.outcomes)-outcomeWindowCap:]
	}
}

// RecentOutcomes returns call outcomes newer than the window, oldest first.
func (a *Adapter) RecentOutcomes(window time.Duration) []Outcome {
	cutoff := time.Now().Add(-window)
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Outcome
	for _, o := range a.outcomes {
		if o.At.After(cutoff) {
			out = append(out, o)
		}
	}
	return out
}
