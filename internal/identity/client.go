// Package identity resolves socket credentials against the external user
// service. The chat backend never stores passwords; it trades the token a
// client presents at login for the user record the rest of the pipeline
// works with.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/avelasqz/multichat-back/internal/metrics"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/utils"
)

var (
	// ErrInvalidCredentials means the user service rejected the token.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrUnavailable means the user service could not be reached, or the
	// breaker is open.
	ErrUnavailable = errors.New("identity: user service unavailable")
)

// Resolver is an HTTP client for the user service, guarded by a circuit
// breaker so a dead upstream fails logins fast instead of piling up
// blocked sessions.
type Resolver struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *utils.Logger
}

func NewResolver(baseURL string, logger *utils.Logger) *Resolver {
	st := gobreaker.Settings{
		Name:        "user-service",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
			logger.Info(context.Background(), "circuit breaker %s moved from %s to %s", name, from, to)
		},
		// A rejected token is a healthy upstream saying no, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidCredentials)
		},
	}

	return &Resolver{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cb:      gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

// Authenticate exchanges login credentials for the user record they belong
// to. A missing token is rejected locally without a round-trip.
func (r *Resolver) Authenticate(ctx context.Context, creds models.AuthCredentials) (*models.User, error) {
	if creds.Token == "" {
		return nil, ErrInvalidCredentials
	}

	result, err := r.cb.Execute(func() (interface{}, error) {
		return r.authenticate(ctx, creds)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return result.(*models.User), nil
}

func (r *Resolver) authenticate(ctx context.Context, creds models.AuthCredentials) (*models.User, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/users/authenticate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build user service request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var user models.User
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("failed to decode user service response: %w", err)
		}
		return &user, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil, ErrInvalidCredentials
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("user service returned status %d", resp.StatusCode)
	}
}
