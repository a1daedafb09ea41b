package workflow

import (
	"fmt"
	"strings"
)

// RequestType identifies which workflow definition governs a request
type RequestType string

const (
	RequestTypeLeave        RequestType = "leave"
	RequestTypeFundRequest  RequestType = "fund_request"
	RequestTypeFailureToLog RequestType = "failure_to_log"
)

var knownRequestTypes = map[RequestType]bool{
	RequestTypeLeave:        true,
	RequestTypeFundRequest:  true,
	RequestTypeFailureToLog: true,
}

// ParseRequestType normalizes and validates a request type
func ParseRequestType(s string) (RequestType, error) {
	t := RequestType(strings.ToLower(strings.TrimSpace(s)))
	if !knownRequestTypes[t] {
		return "", fmt.Errorf("%w: %q", ErrUnknownRequestType, s)
	}
	return t, nil
}

// IsValid returns true if the request type is known
func (t RequestType) IsValid() bool {
	return knownRequestTypes[t]
}

// String returns the string representation of the request type
func (t RequestType) String() string {
	return string(t)
}
