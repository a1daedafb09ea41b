package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// DateLayout is the wire format for calendar dates in payloads
const DateLayout = "2006-01-02"

// ClockLayout is the wire format for corrected clock times
const ClockLayout = "15:04"

// Leave categories that draw from a credit balance
const (
	LeaveCategoryServiceIncentive = "SIL"
	LeaveCategoryVacation         = "VL"
	LeaveCategorySick             = "SL"
)

var creditBearingCategories = map[string]bool{
	LeaveCategoryServiceIncentive: true,
	LeaveCategoryVacation:         true,
	LeaveCategorySick:             true,
}

// Failure-to-log entry types
const (
	EntryTypeTimeIn  = "time_in"
	EntryTypeTimeOut = "time_out"
	EntryTypeBoth    = "both"
)

// ErrInvalidPayload is returned when a payload fails validation
var ErrInvalidPayload = errors.New("invalid payload")

// LeavePayload is the body of a leave request
type LeavePayload struct {
	Category  string  `json:"category"`
	StartDate string  `json:"start_date,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
	Days      float64 `json:"days,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Validate checks the leave payload
func (p LeavePayload) Validate() error {
	if strings.TrimSpace(p.Category) == "" {
		return fmt.Errorf("%w: leave category is required", ErrInvalidPayload)
	}
	if p.Days < 0 {
		return fmt.Errorf("%w: leave days cannot be negative", ErrInvalidPayload)
	}
	if p.StartDate == "" && p.EndDate == "" {
		if p.Days == 0 {
			return fmt.Errorf("%w: leave needs days or a date range", ErrInvalidPayload)
		}
		return nil
	}

	start, err := time.Parse(DateLayout, p.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start_date: %v", ErrInvalidPayload, err)
	}
	end, err := time.Parse(DateLayout, p.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end_date: %v", ErrInvalidPayload, err)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end_date is before start_date", ErrInvalidPayload)
	}
	return nil
}

// CreditKind returns the normalized category used as ledger key
func (p LeavePayload) CreditKind() string {
	return strings.ToUpper(strings.TrimSpace(p.Category))
}

// IsCreditBearing reports whether approving the leave debits a balance
func (p LeavePayload) IsCreditBearing() bool {
	return creditBearingCategories[p.CreditKind()]
}

// DayCount returns Days, or the inclusive calendar span of the date range
func (p LeavePayload) DayCount() float64 {
	if p.Days > 0 {
		return p.Days
	}
	start, err := time.Parse(DateLayout, p.StartDate)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateLayout, p.EndDate)
	if err != nil || end.Before(start) {
		return 0
	}
	return end.Sub(start).Hours()/24 + 1
}

// FundRequestPayload is the body of a fund request
type FundRequestPayload struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency,omitempty"`
	Purpose     string  `json:"purpose"`
	ProjectCode string  `json:"project_code,omitempty"`
}

// Validate checks the fund request payload
func (p FundRequestPayload) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Purpose) == "" {
		return fmt.Errorf("%w: purpose is required", ErrInvalidPayload)
	}
	return nil
}

// FailureToLogPayload is the body of a missed clock-in/out correction
type FailureToLogPayload struct {
	WorkDate         string  `json:"work_date"`
	EntryType        string  `json:"entry_type,omitempty"`
	CorrectedTimeIn  *string `json:"corrected_time_in,omitempty"`
	CorrectedTimeOut *string `json:"corrected_time_out,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// NormalizedEntryType returns the entry type, defaulting to both
func (p FailureToLogPayload) NormalizedEntryType() string {
	t := strings.ToLower(strings.TrimSpace(p.EntryType))
	if t == "" {
		return EntryTypeBoth
	}
	return t
}

// Validate checks the failure-to-log payload. Clock times may still be
// missing at submission; they are required before approval.
func (p FailureToLogPayload) Validate() error {
	if _, err := time.Parse(DateLayout, p.WorkDate); err != nil {
		return fmt.Errorf("%w: work_date: %v", ErrInvalidPayload, err)
	}
	switch p.NormalizedEntryType() {
	case EntryTypeTimeIn, EntryTypeTimeOut, EntryTypeBoth:
	default:
		return fmt.Errorf("%w: unknown entry_type %q", ErrInvalidPayload, p.EntryType)
	}
	for name, v := range map[string]*string{"corrected_time_in": p.CorrectedTimeIn, "corrected_time_out": p.CorrectedTimeOut} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.Parse(ClockLayout, *v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
		}
	}
	return nil
}

// MissingClockTimes lists the corrected times the entry type requires but
// which are not yet present
func (p FailureToLogPayload) MissingClockTimes() []string {
	var missing []string
	entryType := p.NormalizedEntryType()
	if (entryType == EntryTypeTimeIn || entryType == EntryTypeBoth) && isBlank(p.CorrectedTimeIn) {
		missing = append(missing, "corrected_time_in")
	}
	if (entryType == EntryTypeTimeOut || entryType == EntryTypeBoth) && isBlank(p.CorrectedTimeOut) {
		missing = append(missing, "corrected_time_out")
	}
	return missing
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// ValidatePayload decodes the raw payload for the request type and validates it
func ValidatePayload(requestType workflow.RequestType, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidPayload)
	}

	var v interface{ Validate() error }
	switch requestType {
	case workflow.RequestTypeLeave:
		v = &LeavePayload{}
	case workflow.RequestTypeFundRequest:
		v = &FundRequestPayload{}
	case workflow.RequestTypeFailureToLog:
		v = &FailureToLogPayload{}
	default:
		return fmt.Errorf("%w: %s", workflow.ErrUnknownRequestType, requestType)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v.Validate()
}
