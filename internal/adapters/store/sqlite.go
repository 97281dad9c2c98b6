package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// SQLiteStore is a SQLite implementation of the repository interfaces
type SQLiteStore struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewSQLiteStore creates a new SQLite store and its schema
func NewSQLiteStore(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s := &SQLiteStore{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	// Start background snapshot cleanup
	go s.startCleanupTask()

	return s, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS feedback_items (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		email_id TEXT,
		message_id TEXT,
		sender TEXT,
		sender_domain TEXT,
		subject TEXT,
		type TEXT,
		priority TEXT,
		detection_result BOOLEAN,
		confidence REAL,
		features TEXT,
		comment TEXT,
		timestamp TIMESTAMP,
		processed BOOLEAN,
		processed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback_items(user_id, processed)`,
	`CREATE TABLE IF NOT EXISTS verification_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		email_id TEXT,
		sender TEXT,
		sender_domain TEXT,
		confidence REAL,
		status TEXT,
		token TEXT UNIQUE,
		generated_at TIMESTAMP,
		expires_at TIMESTAMP,
		request_sent_count INTEGER,
		responded_at TIMESTAMP,
		user_response TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_pending ON verification_requests(status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_user_email ON verification_requests(user_id, email_id)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT,
		description TEXT,
		parent_id TEXT,
		children TEXT,
		icon TEXT,
		color TEXT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS category_assignments (
		newsletter_id TEXT,
		category_id TEXT,
		confidence REAL,
		is_manual BOOLEAN,
		assigned_at TIMESTAMP,
		PRIMARY KEY (newsletter_id, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_category_preferences (
		user_id TEXT,
		category_id TEXT,
		score REAL,
		PRIMARY KEY (user_id, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sender_reputation (
		key TEXT PRIMARY KEY,
		score REAL,
		sample_count INTEGER,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS analyzer_weights (
		user_id TEXT,
		method TEXT,
		weight REAL,
		PRIMARY KEY (user_id, method)
	)`,
	`CREATE TABLE IF NOT EXISTS detection_snapshots (
		user_id TEXT,
		email_id TEXT,
		message_id TEXT,
		sender TEXT,
		sender_domain TEXT,
		subject TEXT,
		is_newsletter BOOLEAN,
		confidence REAL,
		features TEXT,
		analyzed_at TIMESTAMP,
		expires_at TIMESTAMP,
		PRIMARY KEY (user_id, email_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_expires ON detection_snapshots(expires_at)`,
}

// SaveFeedback stores a feedback item
func (s *SQLiteStore) SaveFeedback(ctx context.Context, item *core.FeedbackItem) error {
	features, err := json.Marshal(item.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feedback_items
		(id, user_id, email_id, message_id, sender, sender_domain, subject, type, priority,
		 detection_result, confidence, features, comment, timestamp, processed, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.UserID, item.EmailID, item.MessageID, item.Sender, item.SenderDomain,
		item.Subject, string(item.Type), string(item.Priority), item.DetectionResult,
		item.Confidence, string(features), item.Comment, formatTime(item.Timestamp),
		item.Processed, formatTimePtr(item.ProcessedAt))
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// GetFeedback retrieves a feedback item by id
func (s *SQLiteStore) GetFeedback(ctx context.Context, id string) (*core.FeedbackItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, email_id, message_id, sender, sender_domain, subject, type, priority,
		       detection_result, confidence, features, comment, timestamp, processed, processed_at
		FROM feedback_items WHERE id = ?
	`, id)
	item, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// ListFeedback returns a user's feedback, optionally only unprocessed items
func (s *SQLiteStore) ListFeedback(ctx context.Context, userID string, onlyUnprocessed bool) ([]*core.FeedbackItem, error) {
	query := `
		SELECT id, user_id, email_id, message_id, sender, sender_domain, subject, type, priority,
		       detection_result, confidence, features, comment, timestamp, processed, processed_at
		FROM feedback_items WHERE user_id = ?`
	if onlyUnprocessed {
		query += ` AND processed = 0`
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var items []*core.FeedbackItem
	for rows.Next() {
		item, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkProcessed flips the processed flag and records the time
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feedback_items SET processed = 1, processed_at = ? WHERE id = ?
	`, formatTime(processedAt), id)
	if err != nil {
		return fmt.Errorf("failed to mark feedback processed: %w", err)
	}
	return nil
}

// SaveRequest inserts or updates a verification request
func (s *SQLiteStore) SaveRequest(ctx context.Context, req *core.VerificationRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO verification_requests
		(id, user_id, email_id, sender, sender_domain, confidence, status, token,
		 generated_at, expires_at, request_sent_count, responded_at, user_response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.UserID, req.EmailID, req.Sender, req.SenderDomain, req.Confidence,
		string(req.Status), req.Token, formatTime(req.GeneratedAt), formatTime(req.ExpiresAt),
		req.RequestSentCount, formatTimePtr(req.RespondedAt), req.UserResponse)
	if err != nil {
		return fmt.Errorf("failed to save verification request: %w", err)
	}
	return nil
}

const requestColumns = `id, user_id, email_id, sender, sender_domain, confidence, status, token,
	generated_at, expires_at, request_sent_count, responded_at, user_response`

// GetRequest retrieves a verification request by id
func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*core.VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

// GetRequestByToken retrieves a verification request by token
func (s *SQLiteStore) GetRequestByToken(ctx context.Context, token string) (*core.VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE token = ?`, token)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

// FindPending returns the PENDING request for (user, email), if any
func (s *SQLiteStore) FindPending(ctx context.Context, userID, emailID string) (*core.VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		 WHERE user_id = ? AND email_id = ? AND status = ?`,
		userID, emailID, string(core.VerificationPending))
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

// ListPending returns all PENDING requests for a user
func (s *SQLiteStore) ListPending(ctx context.Context, userID string) ([]*core.VerificationRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		 WHERE user_id = ? AND status = ?`,
		userID, string(core.VerificationPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// ListExpired returns PENDING requests whose expiry is before now
func (s *SQLiteStore) ListExpired(ctx context.Context, now time.Time) ([]*core.VerificationRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		 WHERE status = ? AND expires_at < ?`,
		string(core.VerificationPending), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// UpdateStatus transitions a request's status
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status core.VerificationStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE verification_requests SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	return nil
}

// SaveCategory inserts or updates a category
func (s *SQLiteStore) SaveCategory(ctx context.Context, category *core.Category) error {
	children, err := json.Marshal(category.Children)
	if err != nil {
		return fmt.Errorf("failed to encode children: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO categories
		(id, name, description, parent_id, children, icon, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, category.ID, category.Name, category.Description, category.ParentID, string(children),
		category.Icon, category.Color, formatTime(category.CreatedAt), formatTime(category.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by id
func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (*core.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, parent_id, children, icon, color, created_at, updated_at
		FROM categories WHERE id = ?
	`, id)
	category, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return category, err
}

// ListCategories returns all categories
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]*core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, parent_id, children, icon, color, created_at, updated_at
		FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*core.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// SaveAssignment inserts or overwrites a (newsletter, category) assignment
func (s *SQLiteStore) SaveAssignment(ctx context.Context, assignment *core.CategoryAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO category_assignments
		(newsletter_id, category_id, confidence, is_manual, assigned_at)
		VALUES (?, ?, ?, ?, ?)
	`, assignment.NewsletterID, assignment.CategoryID, assignment.Confidence,
		assignment.IsManual, formatTime(assignment.AssignedAt))
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

// RemoveAssignment deletes an assignment, reporting whether it existed
func (s *SQLiteStore) RemoveAssignment(ctx context.Context, newsletterID, categoryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM category_assignments WHERE newsletter_id = ? AND category_id = ?
	`, newsletterID, categoryID)
	if err != nil {
		return false, fmt.Errorf("failed to remove assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count removed assignments: %w", err)
	}
	return affected > 0, nil
}

// GetAssignments returns all assignments for a newsletter
func (s *SQLiteStore) GetAssignments(ctx context.Context, newsletterID string) ([]*core.CategoryAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT newsletter_id, category_id, confidence, is_manual, assigned_at
		FROM category_assignments WHERE newsletter_id = ?
	`, newsletterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*core.CategoryAssignment
	for rows.Next() {
		var assignment core.CategoryAssignment
		var assignedAt string
		if err := rows.Scan(&assignment.NewsletterID, &assignment.CategoryID,
			&assignment.Confidence, &assignment.IsManual, &assignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignment.AssignedAt = parseTime(assignedAt)
		assignments = append(assignments, &assignment)
	}
	return assignments, rows.Err()
}

// GetPreference returns the score for (user, category), zero if unset
func (s *SQLiteStore) GetPreference(ctx context.Context, userID, categoryID string) (float64, error) {
	var score float64
	err := s.db.QueryRowContext(ctx, `
		SELECT score FROM user_category_preferences WHERE user_id = ? AND category_id = ?
	`, userID, categoryID).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query preference: %w", err)
	}
	return score, nil
}

// SavePreference stores the score for (user, category)
func (s *SQLiteStore) SavePreference(ctx context.Context, userID, categoryID string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_category_preferences (user_id, category_id, score)
		VALUES (?, ?, ?)
	`, userID, categoryID, score)
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// ListPreferences returns all of a user's preference scores
func (s *SQLiteStore) ListPreferences(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, score FROM user_category_preferences WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]float64)
	for rows.Next() {
		var categoryID string
		var score float64
		if err := rows.Scan(&categoryID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs[categoryID] = score
	}
	return prefs, rows.Err()
}

// GetReputation retrieves the reputation for a sender or domain key
func (s *SQLiteStore) GetReputation(ctx context.Context, key string) (*core.SenderReputation, error) {
	var rep core.SenderReputation
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT key, score, sample_count, updated_at FROM sender_reputation WHERE key = ?
	`, key).Scan(&rep.Key, &rep.Score, &rep.SampleCount, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reputation: %w", err)
	}
	rep.UpdatedAt = parseTime(updatedAt)
	return &rep, nil
}

// SaveReputation stores a reputation entry
func (s *SQLiteStore) SaveReputation(ctx context.Context, rep *core.SenderReputation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sender_reputation (key, score, sample_count, updated_at)
		VALUES (?, ?, ?, ?)
	`, rep.Key, rep.Score, rep.SampleCount, formatTime(rep.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save reputation: %w", err)
	}
	return nil
}

// GetWeights returns a user's weight overrides keyed by analyzer method
func (s *SQLiteStore) GetWeights(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT method, weight FROM analyzer_weights WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list weights: %w", err)
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var method string
		var weight float64
		if err := rows.Scan(&method, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan weight: %w", err)
		}
		weights[method] = weight
	}
	return weights, rows.Err()
}

// SaveWeight stores one weight override
func (s *SQLiteStore) SaveWeight(ctx context.Context, userID, method string, weight float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analyzer_weights (user_id, method, weight)
		VALUES (?, ?, ?)
	`, userID, method, weight)
	if err != nil {
		return fmt.Errorf("failed to save weight: %w", err)
	}
	return nil
}

// SaveSnapshot stores a detection snapshot
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snapshot *core.DetectionSnapshot) error {
	features, err := json.Marshal(snapshot.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO detection_snapshots
		(user_id, email_id, message_id, sender, sender_domain, subject,
		 is_newsletter, confidence, features, analyzed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snapshot.UserID, snapshot.EmailID, snapshot.MessageID, snapshot.Sender,
		snapshot.SenderDomain, snapshot.Subject, snapshot.IsNewsletter, snapshot.Confidence,
		string(features), formatTime(snapshot.AnalyzedAt), formatTime(snapshot.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot for (user, email)
func (s *SQLiteStore) GetSnapshot(ctx context.Context, userID, emailID string) (*core.DetectionSnapshot, error) {
	var snapshot core.DetectionSnapshot
	var features, analyzedAt, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email_id, message_id, sender, sender_domain, subject,
		       is_newsletter, confidence, features, analyzed_at, expires_at
		FROM detection_snapshots WHERE user_id = ? AND email_id = ? AND expires_at > ?
	`, userID, emailID, formatTime(time.Now())).Scan(
		&snapshot.UserID, &snapshot.EmailID, &snapshot.MessageID, &snapshot.Sender,
		&snapshot.SenderDomain, &snapshot.Subject, &snapshot.IsNewsletter,
		&snapshot.Confidence, &features, &analyzedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(features), &snapshot.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	snapshot.AnalyzedAt = parseTime(analyzedAt)
	snapshot.ExpiresAt = parseTime(expiresAt)
	return &snapshot, nil
}

// Cleanup removes expired snapshots
func (s *SQLiteStore) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM detection_snapshots WHERE expires_at <= ?
	`, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to clean up expired snapshots: %w", err)
	}

	expired, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired snapshots", zap.Int64("expired_count", expired))
	}
	return nil
}

// startCleanupTask starts a background task to clean up expired snapshots
func (s *SQLiteStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up snapshots", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database
func (s *SQLiteStore) Stop() {
	close(s.stopCh)
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
