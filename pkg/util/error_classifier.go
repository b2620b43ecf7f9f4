package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

var statusCodePattern = regexp.MustCompile(`(?i)status(?: code)?:? ?(\d{3})`)

// IsRetryableError determines if an error is retryable.
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// context 取消不可重试；超时交给调用方的重试策略
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}

	// JSON decode errors - 数据格式错误，不可重试
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	msg := strings.ToLower(err.Error())

	if code := extractStatusCode(msg); code > 0 {
		switch {
		case code == 429:
			return true, "rate_limited"
		case code == 408:
			return true, "timeout"
		case code >= 500:
			return true, "provider_unavailable"
		default:
			return false, "client_error"
		}
	}

	switch {
	case strings.Contains(msg, "duplicate key"):
		return false, "duplicate_key"
	case containsAny(msg, "rate limit", "too many requests", "rate_limit_error"):
		return true, "rate_limited"
	case containsAny(msg, "overloaded", "service unavailable", "temporarily unavailable", "try again later"):
		return true, "provider_unavailable"
	case containsAny(msg, "insufficient_quota", "invalid api key", "unauthorized"):
		return false, "auth_error"
	case containsAny(msg, "connection reset", "connection refused", "eof"):
		return true, "network_error"
	case containsAny(msg, "timeout", "timed out"):
		return true, "timeout"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

func extractStatusCode(msg string) int {
	m := statusCodePattern.FindStringSubmatch(msg)
	if len(m) != 2 {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil || code < 100 || code > 599 {
		return 0
	}
	return code
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
