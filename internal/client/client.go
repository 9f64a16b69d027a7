package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/circuitbreaker"
	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
	"github.com/kjstillabower/ghg-dashboard-service/internal/observability"
	"github.com/kjstillabower/ghg-dashboard-service/internal/window"
)

// AirQualityClient fetches the hourly CO2/CH4 series for a region.
type AirQualityClient interface {
	FetchSeries(ctx context.Context, region models.Region) (models.Series, error)
	Ping(ctx context.Context) error
}

var (
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
)

// hourlyTimeLayout is the wall-clock format Open-Meteo returns when a
// timezone parameter is passed (no offset suffix).
const hourlyTimeLayout = "2006-01-02T15:04"

// OpenMeteoClient fetches greenhouse-gas series from the Open-Meteo
// air-quality API. One GET per refresh covers the trailing week plus the
// forecast horizon.
type OpenMeteoClient struct {
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	pastDays       int
	forecastDays   int
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewOpenMeteoClient creates a client with default retry parameters.
func NewOpenMeteoClient(apiURL string, timeout time.Duration) (*OpenMeteoClient, error) {
	return NewOpenMeteoClientWithRetry(apiURL, timeout, 7, 2, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenMeteoClientWithRetry creates a client. pastDays and forecastDays
// shape the requested date range; retries apply to retryable upstream errors
// with exponential backoff and jitter.
func NewOpenMeteoClientWithRetry(apiURL string, timeout time.Duration, pastDays, forecastDays, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenMeteoClient, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("API URL is required")
	}
	if pastDays <= 0 {
		pastDays = 7
	}
	if forecastDays <= 0 {
		forecastDays = 2
	}
	return &OpenMeteoClient{
		apiURL:         apiURL,
		timeout:        timeout,
		pastDays:       pastDays,
		forecastDays:   forecastDays,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker attaches a breaker guarding upstream calls. Optional.
func (c *OpenMeteoClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// airQualityResponse mirrors the Open-Meteo payload: parallel arrays of
// timestamps and per-variable values. Entries can be null when the model has
// no value for an hour.
type airQualityResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		CarbonDioxide []*float64 `json:"carbon_dioxide"`
		Methane       []*float64 `json:"methane"`
	} `json:"hourly"`
}

// FetchSeries performs the upstream GET for the region and zips the parallel
// arrays into an ordered sample series, retrying retryable failures.
func (c *OpenMeteoClient) FetchSeries(ctx context.Context, region models.Region) (models.Series, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.AirQualityAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var result models.Series
		call := func() error {
			var err error
			result, err = c.callAPI(ctx, region)
			return err
		}
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, call)
		} else {
			err = call()
		}
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, region models.Region) (models.Series, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, region.Latitude, region.Longitude, c.pastDays, c.forecastDays)
	if err != nil {
		observability.AirQualityAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.AirQualityAPICallsTotal.WithLabelValues("error").Inc()
		observability.AirQualityAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.AirQualityAPICallsTotal.WithLabelValues(status).Inc()
	observability.AirQualityAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiResp airQualityResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}

	return zipSeries(apiResp)
}

// zipSeries converts the parallel arrays into samples. Hours where either
// gas is null are skipped; a length mismatch or out-of-order timestamps are
// malformed responses.
func zipSeries(resp airQualityResponse) (models.Series, error) {
	h := resp.Hourly
	if len(h.Time) != len(h.CarbonDioxide) || len(h.Time) != len(h.Methane) {
		return nil, fmt.Errorf("%w: parallel array length mismatch (time=%d co2=%d ch4=%d)",
			ErrMalformedResponse, len(h.Time), len(h.CarbonDioxide), len(h.Methane))
	}

	series := make(models.Series, 0, len(h.Time))
	for i, raw := range h.Time {
		if h.CarbonDioxide[i] == nil || h.Methane[i] == nil {
			continue
		}
		ts, err := time.ParseInLocation(hourlyTimeLayout, raw, window.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: parse timestamp %q: %v", ErrMalformedResponse, raw, err)
		}
		series = append(series, models.Sample{
			Time:   ts,
			CO2PPM: *h.CarbonDioxide[i],
			CH4PPB: *h.Methane[i],
		})
	}
	if !series.IsSorted() {
		return nil, fmt.Errorf("%w: timestamps not strictly ascending", ErrMalformedResponse)
	}
	return series, nil
}

func (c *OpenMeteoClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, lat, lon float64, pastDays, forecastDays int) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("hourly", "carbon_dioxide,methane")
	params.Set("past_days", strconv.Itoa(pastDays))
	params.Set("forecast_days", strconv.Itoa(forecastDays))
	params.Set("timezone", "Asia/Jakarta")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenMeteoClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// pingCoords is the fixed probe point for reachability checks (central Jakarta).
var pingCoords = models.Region{Name: "ping", Latitude: -6.1862, Longitude: 106.8347}

// Ping checks upstream reachability with a minimal request. Used by health checks.
func (c *OpenMeteoClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, pingCoords.Latitude, pingCoords.Longitude, 0, 1)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping failed: HTTP %d", resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
