/*
Package push implements C6, the outbound push notifier: it delivers
task-update payloads to registered webhooks with Bearer/HMAC/JWT auth and
exponential-backoff retry. Delivery failures are logged and counted; they
never propagate back into task state or a client response (spec §7).
*/
package push

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/logging"
	"github.com/theapemachine/superx/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	defaultJWTTTL      = 300 * time.Second
	defaultJWTSkew     = 120 * time.Second
)

// Service is C6. The zero value is not usable; build one with NewService.
type Service struct {
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	jwtTTL      time.Duration
	jwtSkew     time.Duration
}

func NewService() *Service {
	return &Service{
		client:      &http.Client{Timeout: 10 * time.Second},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		jwtTTL:      defaultJWTTTL,
		jwtSkew:     defaultJWTSkew,
	}
}

// envelope is the fixed wire shape every push POST carries.
type envelope struct {
	StreamResponse any `json:"streamResponse"`
}

// Deliver posts payload (a task, statusUpdate, or artifactUpdate) to
// cfg.URL, retrying on transport error or HTTP 5xx up to maxAttempts times
// with exponential backoff. It satisfies task.Notifier; failures are logged
// and counted, never returned to the caller.
func (s *Service) Deliver(ctx context.Context, payload any, cfg *a2a.PushConfig) {
	if cfg == nil || cfg.URL == "" {
		log.Debug("push skipped: no url", "task_id", cfgTaskID(cfg))
		return
	}

	body, err := json.Marshal(envelope{StreamResponse: payload})
	if err != nil {
		log.Error("push encode failed", "task_id", cfg.TaskID, "error", err)
		return
	}

	metrics.RecordPush("push_start")
	logging.Log("push_start task=%s url=%s", cfg.TaskID, cfg.URL)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff(attempt, s.baseDelay)):
			case <-ctx.Done():
				return
			}
		}

		status, err := s.attempt(ctx, cfg, body)
		if err == nil && status >= 200 && status < 300 {
			metrics.RecordPush("push_success")
			logging.Log("push_success task=%s url=%s attempt=%d status=%d", cfg.TaskID, cfg.URL, attempt, status)
			return
		}

		if err == nil && status >= 400 && status < 500 {
			metrics.RecordPush("push_failure")
			logging.Log("push_failure task=%s url=%s attempt=%d status=%d reason=http_error", cfg.TaskID, cfg.URL, attempt, status)
			return
		}

		reason := "transport_error"
		if err == nil {
			reason = fmt.Sprintf("http_%d", status)
		}
		log.Debug("push attempt failed", "task_id", cfg.TaskID, "url", cfg.URL, "attempt", attempt, "reason", reason)
	}

	metrics.RecordPush("push_failure")
	logging.Log("push_failure task=%s url=%s reason=max_attempts", cfg.TaskID, cfg.URL)
}

// backoff returns 2^(n-2) * base for attempt n (n is only ever >1 here):
// base before attempt 2, doubling before each later attempt.
func backoff(attempt int, base time.Duration) time.Duration {
	return time.Duration(1<<uint(attempt-2)) * base
}

func (s *Service) attempt(ctx context.Context, cfg *a2a.PushConfig, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("content-type", "application/json")

	if err := s.sign(req, cfg, body); err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// sign attaches whichever of token/HMAC/JWT auth headers cfg configures.
// The three modes are additive: a config may set more than one and every
// applicable header is sent.
func (s *Service) sign(req *http.Request, cfg *a2a.PushConfig, body []byte) error {
	if cfg.Token != "" {
		req.Header.Set("x-a2a-token", cfg.Token)
	}

	if cfg.HMACSecret != "" {
		ts := fmt.Sprintf("%d", time.Now().Unix())
		mac := hmac.New(sha256.New, []byte(cfg.HMACSecret))
		mac.Write([]byte(ts + "." + string(body)))
		req.Header.Set("x-a2a-signature", hex.EncodeToString(mac.Sum(nil)))
		req.Header.Set("x-a2a-timestamp", ts)
	}

	if cfg.JWTSecret != "" {
		token, err := s.jwtToken(cfg, body)
		if err != nil {
			return err
		}
		req.Header.Set("authorization", "Bearer "+token)
	}

	return nil
}

// pushClaims is the payload of the HS256 JWT attached when JWTSecret is
// configured. Hash binds the token to this specific body so a replayed
// token can't be paired with a different payload.
type pushClaims struct {
	Hash   string `json:"hash"`
	TaskID string `json:"taskId,omitempty"`
	jwt.RegisteredClaims
}

func (s *Service) jwtToken(cfg *a2a.PushConfig, body []byte) (string, error) {
	now := time.Now()
	sum := sha256.Sum256(body)

	claims := pushClaims{
		Hash:   hex.EncodeToString(sum[:]),
		TaskID: cfg.TaskID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
			NotBefore: jwt.NewNumericDate(now.Add(-s.jwtSkew)),
		},
	}
	if cfg.JWTIssuer != "" {
		claims.Issuer = cfg.JWTIssuer
	}
	if cfg.JWTAudience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.JWTAudience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if cfg.JWTKid != "" {
		token.Header["kid"] = cfg.JWTKid
	}

	return token.SignedString([]byte(cfg.JWTSecret))
}

func cfgTaskID(cfg *a2a.PushConfig) string {
	if cfg == nil {
		return ""
	}
	return cfg.TaskID
}
