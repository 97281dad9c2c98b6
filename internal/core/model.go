package core

import (
	"strings"
	"time"
)

// Email represents an incoming email message
type Email struct {
	ID        string
	MessageID string
	From      string
	To        []string
	Subject   string
	Body      string
	Headers   map[string][]string
}

// SenderDomain extracts the domain part of the sender address.
// Returns an empty string if the address is malformed.
func (e *Email) SenderDomain() string {
	parts := strings.Split(e.From, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// Header returns the first value of a header, case-insensitively keyed
func (e *Email) Header(name string) string {
	values := e.HeaderValues(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// HeaderValues returns all values of a header, case-insensitively keyed
func (e *Email) HeaderValues(name string) []string {
	for key, values := range e.Headers {
		if strings.EqualFold(key, name) {
			return values
		}
	}
	return nil
}

// DetectionScore is the output of a single signal analyzer
type DetectionScore struct {
	Method     string
	Score      float64
	Confidence float64
	Reason     string
	Metadata   map[string]string
}

// DetectionResult is the aggregated decision for one email
type DetectionResult struct {
	CombinedScore     float64
	IsNewsletter      bool
	NeedsVerification bool
	Scores            []DetectionScore
	AnalyzedAt        time.Time
}

// DetectionSnapshot preserves what the system decided about an email so
// that later feedback can be judged against it
type DetectionSnapshot struct {
	UserID       string
	EmailID      string
	MessageID    string
	Sender       string
	SenderDomain string
	Subject      string
	IsNewsletter bool
	Confidence   float64
	Features     map[string]float64
	AnalyzedAt   time.Time
	ExpiresAt    time.Time
}

// VerificationStatus is the state of a verification request
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "PENDING"
	VerificationConfirmed VerificationStatus = "CONFIRMED"
	VerificationRejected  VerificationStatus = "REJECTED"
	VerificationExpired   VerificationStatus = "EXPIRED"
	VerificationCanceled  VerificationStatus = "CANCELED"
)

// IsTerminal reports whether the status permits no further transitions
func (s VerificationStatus) IsTerminal() bool {
	return s != VerificationPending
}

// VerificationRequest is a human-confirmation request for an ambiguous detection
type VerificationRequest struct {
	ID               string
	UserID           string
	EmailID          string
	Sender           string
	SenderDomain     string
	Confidence       float64
	Status           VerificationStatus
	Token            string
	GeneratedAt      time.Time
	ExpiresAt        time.Time
	RequestSentCount int
	RespondedAt      *time.Time
	UserResponse     string
}

// FeedbackType classifies a user's judgment about a past detection
type FeedbackType string

const (
	FeedbackConfirm   FeedbackType = "CONFIRM"
	FeedbackReject    FeedbackType = "REJECT"
	FeedbackVerify    FeedbackType = "VERIFY"
	FeedbackUncertain FeedbackType = "UNCERTAIN"
	FeedbackIgnore    FeedbackType = "IGNORE"
)

// FeedbackPriority ranks how urgently a feedback item should drive learning
type FeedbackPriority string

const (
	PriorityHigh   FeedbackPriority = "HIGH"
	PriorityMedium FeedbackPriority = "MEDIUM"
	PriorityLow    FeedbackPriority = "LOW"
)

// FeedbackItem records one human feedback event. Immutable once saved
// except for Processed/ProcessedAt.
type FeedbackItem struct {
	ID              string
	UserID          string
	EmailID         string
	MessageID       string
	Sender          string
	SenderDomain    string
	Subject         string
	Type            FeedbackType
	Priority        FeedbackPriority
	DetectionResult bool
	Confidence      float64
	Features        map[string]float64
	Comment         string
	Timestamp       time.Time
	Processed       bool
	ProcessedAt     *time.Time
}

// CategoryAssignment links a newsletter to a category with a confidence.
// Unique per (newsletter, category); re-assignment overwrites.
type CategoryAssignment struct {
	NewsletterID string
	CategoryID   string
	Confidence   float64
	IsManual     bool
	AssignedAt   time.Time
}

// Category is a node in the category tree
type Category struct {
	ID          string
	Name        string
	Description string
	ParentID    string
	Children    []string
	Icon        string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewsletterContent is the matcher's view of a newsletter
type NewsletterContent struct {
	NewsletterID string
	Sender       string
	Subject      string
	Body         string
}

// SenderReputation is a learned trust score for a sender or domain
type SenderReputation struct {
	Key         string
	Score       float64
	SampleCount int
	UpdatedAt   time.Time
}

// Clamp01 bounds a score, confidence or preference value to [0,1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
