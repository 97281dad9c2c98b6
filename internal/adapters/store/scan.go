package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/newsletter-filter/internal/core"
)

// mysqlTimeLayout matches MySQL DATETIME columns; SQLite stores RFC 3339 text
const mysqlTimeLayout = "2006-01-02 15:04:05"

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helpers
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func mysqlTime(t time.Time) string {
	return t.UTC().Format(mysqlTimeLayout)
}

func mysqlTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return mysqlTime(*t)
}

// parseTime accepts both backends' timestamp encodings
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(mysqlTimeLayout, s); err == nil {
		return t
	}
	return time.Time{}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func scanFeedback(row rowScanner) (*core.FeedbackItem, error) {
	var item core.FeedbackItem
	var feedbackType, priority, features, timestamp string
	var processedAt sql.NullString
	err := row.Scan(&item.ID, &item.UserID, &item.EmailID, &item.MessageID, &item.Sender,
		&item.SenderDomain, &item.Subject, &feedbackType, &priority, &item.DetectionResult,
		&item.Confidence, &features, &item.Comment, &timestamp, &item.Processed, &processedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feedback: %w", err)
	}
	item.Type = core.FeedbackType(feedbackType)
	item.Priority = core.FeedbackPriority(priority)
	if err := json.Unmarshal([]byte(features), &item.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	item.Timestamp = parseTime(timestamp)
	item.ProcessedAt = parseTimePtr(processedAt)
	return &item, nil
}

func scanRequest(row rowScanner) (*core.VerificationRequest, error) {
	var req core.VerificationRequest
	var status, generatedAt, expiresAt string
	var respondedAt sql.NullString
	err := row.Scan(&req.ID, &req.UserID, &req.EmailID, &req.Sender, &req.SenderDomain,
		&req.Confidence, &status, &req.Token, &generatedAt, &expiresAt,
		&req.RequestSentCount, &respondedAt, &req.UserResponse)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan verification request: %w", err)
	}
	req.Status = core.VerificationStatus(status)
	req.GeneratedAt = parseTime(generatedAt)
	req.ExpiresAt = parseTime(expiresAt)
	req.RespondedAt = parseTimePtr(respondedAt)
	return &req, nil
}

func collectRequests(rows *sql.Rows) ([]*core.VerificationRequest, error) {
	var requests []*core.VerificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanCategory(row rowScanner) (*core.Category, error) {
	var category core.Category
	var children, createdAt, updatedAt string
	err := row.Scan(&category.ID, &category.Name, &category.Description, &category.ParentID,
		&children, &category.Icon, &category.Color, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	if err := json.Unmarshal([]byte(children), &category.Children); err != nil {
		return nil, fmt.Errorf("failed to decode children: %w", err)
	}
	category.CreatedAt = parseTime(createdAt)
	category.UpdatedAt = parseTime(updatedAt)
	return &category, nil
}
