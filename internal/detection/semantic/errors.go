package semantic

import "strings"

// FailureClass categorizes a provider failure. Classification is by
// message content because provider SDK-level error types are not part
// of the transport contract.
type FailureClass string

const (
	FailureRateLimited FailureClass = "rate_limited"
	FailureAuthFailed  FailureClass = "auth_failed"
	FailureBilling     FailureClass = "billing_issue"
	FailureNetwork     FailureClass = "network_issue"
	FailureModel       FailureClass = "model_issue"
)

// ClassifyFailure maps a provider error onto the failure taxonomy.
// Order matters: rate limiting and auth have distinctive markers,
// billing and network are narrower, and anything left is a model or
// request problem.
func ClassifyFailure(err error) FailureClass {
	if err == nil {
		return FailureModel
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "429", "rate limit", "too many requests", "resource_exhausted"):
		return FailureRateLimited
	case containsAny(msg, "401", "403", "unauthorized", "api key", "permission denied", "invalid authentication"):
		return FailureAuthFailed
	case containsAny(msg, "402", "billing", "payment", "insufficient_quota", "quota exceeded"):
		return FailureBilling
	case containsAny(msg, "timeout", "deadline", "connection", "dial", "network", "no such host", "eof"):
		return FailureNetwork
	default:
		return FailureModel
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
