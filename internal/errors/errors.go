// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed taxonomy every channel-specific failure is normalized
// into. Nothing channel-specific escapes above the dispatcher boundary.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindRateLimited       Kind = "rate_limited"
	KindAuth              Kind = "auth"
	KindTransport         Kind = "transport"
	KindInvalidTransition Kind = "invalid_transition"
)

// DispatchError is a classified send failure. Err keeps the underlying
// provider error for logs; callers branch on Kind only.
type DispatchError struct {
	Kind       Kind
	Channel    string
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error on %s: %s: %v", e.Kind, e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s error on %s: %s", e.Kind, e.Channel, e.Reason)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func NewValidationError(channel, reason string) error {
	return &DispatchError{Kind: KindValidation, Channel: channel, Reason: reason}
}

func NewRateLimited(channel string, retryAfter time.Duration, err error) error {
	return &DispatchError{Kind: KindRateLimited, Channel: channel, Reason: "transport throttled", RetryAfter: retryAfter, Err: err}
}

func NewAuthError(channel string, err error) error {
	return &DispatchError{Kind: KindAuth, Channel: channel, Reason: "invalid or expired credentials", Err: err}
}

func NewTransportError(channel string, err error) error {
	return &DispatchError{Kind: KindTransport, Channel: channel, Reason: "transport failure", Err: err}
}

// KindOf classifies any error into the taxonomy. Unclassified errors are
// transport errors: the generic bucket for anything unexpected.
func KindOf(err error) Kind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	var it *ErrInvalidTransition
	if errors.As(err, &it) {
		return KindInvalidTransition
	}
	return KindTransport
}

// ErrAlreadyEnrolled is returned when an active enrollment already exists for
// a (lead, campaign) pair.
type ErrAlreadyEnrolled struct {
	LeadID     int
	CampaignID int
}

func (e *ErrAlreadyEnrolled) Error() string {
	return fmt.Sprintf("lead %d is already enrolled in campaign %d", e.LeadID, e.CampaignID)
}

func NewAlreadyEnrolled(leadID, campaignID int) error {
	return &ErrAlreadyEnrolled{LeadID: leadID, CampaignID: campaignID}
}

type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrLeadNotFound struct {
	LeadID int
}

func (e *ErrLeadNotFound) Error() string {
	return fmt.Sprintf("lead with ID %d not found", e.LeadID)
}

func NewLeadNotFound(id int) error {
	return &ErrLeadNotFound{LeadID: id}
}

// ErrInvalidTransition reports a message status move that is not in the
// allowed set. This is a programming-level error: fatal to the operation,
// logged, never silently swallowed.
type ErrInvalidTransition struct {
	MessageID string
	From      string
	To        string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s for message %s", e.From, e.To, e.MessageID)
}

func NewInvalidTransition(messageID, from, to string) error {
	return &ErrInvalidTransition{MessageID: messageID, From: from, To: to}
}
