package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrFatalAPI marks provider errors that will not succeed on retry: bad credentials,
// exhausted quota or billing problems, and rate limiting.
var ErrFatalAPI = errors.New("provider rejected request")

// fatalPatterns are lowercase substrings that identify ErrFatalAPI conditions.
var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"incorrect api key",
	"authentication",
	"unauthorized",
}

// fatalStatus matches HTTP 401/403 as providers report them, e.g. "status code: 401",
// "StatusCode: 403" or "HTTP 401". Bare digits elsewhere in a message do not match.
var fatalStatus = regexp.MustCompile(`\b(?:status\s*code|statuscode|status|http)\s*[:=]?\s*40[13]\b`)

// isFatalAPIError reports whether err matches a known non-retryable provider condition.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return fatalStatus.MatchString(msg)
}

// wrapFatalError tags fatal provider errors with ErrFatalAPI and passes others through.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
