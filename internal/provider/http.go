package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"ciwarden/pkg/logging"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRetryMax    = 3
)

// HTTPOptions configures the HTTP client shared by the providers.
type HTTPOptions struct {
	// Timeout bounds a single request including retries' individual attempts.
	Timeout time.Duration

	// RetryMax is the number of retries after the first attempt. Negative
	// disables retries.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewHTTPClient returns a *http.Client that retries transient failures.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = retryLogger{}

	switch {
	case opts.RetryMax < 0:
		rc.RetryMax = 0
	case opts.RetryMax == 0:
		rc.RetryMax = defaultRetryMax
	default:
		rc.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	rc.HTTPClient.Timeout = timeout

	return rc.StandardClient()
}

// retryLogger routes retryablehttp's leveled logs into the Provider subsystem.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) {
	logging.Warn("Provider", "%s%s", msg, formatKeyValues(keysAndValues))
}

func (retryLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("Provider", "%s%s", msg, formatKeyValues(keysAndValues))
}

func (retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	logging.Debug("Provider", "%s%s", msg, formatKeyValues(keysAndValues))
}

func (retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	logging.Warn("Provider", "%s%s", msg, formatKeyValues(keysAndValues))
}

func formatKeyValues(kv []interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v", kv[i])
		}
	}
	return b.String()
}

// splitRepo splits "owner/name". Nested namespaces keep everything before the
// last slash as the owner.
func splitRepo(fullName string) (string, string, error) {
	idx := strings.LastIndex(fullName, "/")
	if idx <= 0 || idx == len(fullName)-1 {
		return "", "", fmt.Errorf("invalid repository name %q, expected owner/name", fullName)
	}
	return fullName[:idx], fullName[idx+1:], nil
}

// branchSet returns a lookup of branches.
func branchSet(branches []string) map[string]struct{} {
	set := make(map[string]struct{}, len(branches))
	for _, b := range branches {
		set[b] = struct{}{}
	}
	return set
}
