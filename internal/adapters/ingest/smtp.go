package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// SMTPFilter is an SMTP content filter that classifies incoming mail and
// stamps the detection result into the message headers before forwarding
// it upstream
type SMTPFilter struct {
	service          *core.DetectionService
	logger           *zap.Logger
	listenAddr       string
	server           *smtp.Server
	newsletterHeader string
	scoreHeader      string
	reasonHeader     string
	upstreamAddr     string
	defaultUser      string
}

// NewSMTPFilter creates a new SMTP content filter
func NewSMTPFilter(
	service *core.DetectionService,
	logger *zap.Logger,
	listenAddr string,
	newsletterHeader string,
	scoreHeader string,
	reasonHeader string,
	upstreamAddr string,
	defaultUser string,
) *SMTPFilter {
	return &SMTPFilter{
		service:          service,
		logger:           logger,
		listenAddr:       listenAddr,
		newsletterHeader: newsletterHeader,
		scoreHeader:      scoreHeader,
		reasonHeader:     reasonHeader,
		upstreamAddr:     upstreamAddr,
		defaultUser:      defaultUser,
	}
}

// Start starts the SMTP filter service
func (f *SMTPFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("SMTP filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP filter service
func (f *SMTPFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail classifies an email directly, bypassing the SMTP surface.
// Mainly used for testing.
func (f *SMTPFilter) ProcessEmail(ctx context.Context, userID string, email *core.Email) (*core.DetectionResult, error) {
	return f.service.AnalyzeEmail(ctx, userID, email)
}

// sendUpstream forwards the stamped message to the upstream MTA
func (f *SMTPFilter) sendUpstream(sender string, recipients []string, emailData []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", f.upstreamAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to upstream MTA: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			// Continue with other recipients even if one fails
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
		// The message was already accepted, so this is not fatal
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *SMTPFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		filter:     b.filter,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *SMTPFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for the filter)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data classifies the message, stamps the detection headers and forwards
// the message upstream
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.filter.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	textContent, err := extractTextFromMessage(msg)
	if err != nil {
		s.filter.logger.Error("Failed to extract text content", zap.Error(err))
		return err
	}

	email := &core.Email{
		ID:      uuid.NewString(),
		Headers: make(map[string][]string),
		Body:    textContent,
		From:    s.sender,
		To:      s.recipients,
	}
	for key, values := range msg.Header {
		email.Headers[key] = values
		if strings.EqualFold(key, "Subject") && len(values) > 0 {
			if decoded, err := decodeEncodedHeader(values[0]); err == nil {
				email.Subject = decoded
			} else {
				email.Subject = values[0]
			}
		}
		if strings.EqualFold(key, "Message-ID") && len(values) > 0 {
			email.MessageID = values[0]
		}
	}
	// A stable Message-ID keys the snapshot better than a fresh uuid
	if email.MessageID != "" {
		email.ID = email.MessageID
	}

	userID := userForRecipients(s.recipients, s.filter.defaultUser)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, analysisErr := s.filter.service.AnalyzeEmail(ctx, userID, email)
	if analysisErr != nil {
		s.filter.logger.Error("Failed to analyze email",
			zap.Error(analysisErr),
			zap.String("sender", email.From),
			zap.String("user_id", userID))

		// Never lose mail over a classification failure
		result = &core.DetectionResult{
			IsNewsletter: false,
			AnalyzedAt:   time.Now(),
		}
	}

	var stamped bytes.Buffer
	fmt.Fprintf(&stamped, "%s: %t\r\n", s.filter.newsletterHeader, result.IsNewsletter)
	fmt.Fprintf(&stamped, "%s: %.4f\r\n", s.filter.scoreHeader, result.CombinedScore)
	fmt.Fprintf(&stamped, "%s: %s\r\n", s.filter.reasonHeader, summarizeReasons(result))
	if analysisErr != nil {
		fmt.Fprintf(&stamped, "X-Newsletter-Analysis-Error: %s\r\n", analysisErr.Error())
	}
	for key, values := range msg.Header {
		for _, value := range values {
			fmt.Fprintf(&stamped, "%s: %s\r\n", key, value)
		}
	}
	fmt.Fprintf(&stamped, "\r\n")

	// Preserve the original body bytes so MIME parts and attachments
	// survive the round trip
	bodyStartIndex := bytes.Index(rawData, []byte("\r\n\r\n"))
	if bodyStartIndex != -1 {
		stamped.Write(rawData[bodyStartIndex+4:])
	} else if bodyStartIndex = bytes.Index(rawData, []byte("\n\n")); bodyStartIndex != -1 {
		stamped.Write(rawData[bodyStartIndex+2:])
	} else {
		stamped.WriteString(textContent)
	}

	if err := s.filter.sendUpstream(s.sender, s.recipients, stamped.Bytes()); err != nil {
		s.filter.logger.Error("Failed to forward email upstream",
			zap.Error(err),
			zap.String("sender", email.From))
		return err
	}

	s.filter.logger.Info("Processed email",
		zap.String("from", email.From),
		zap.String("user_id", userID),
		zap.Bool("is_newsletter", result.IsNewsletter),
		zap.Bool("needs_verification", result.NeedsVerification),
		zap.Float64("score", result.CombinedScore))

	return nil
}

// Logout handles SMTP logout (not needed for the filter)
func (s *smtpSession) Logout() error {
	return nil
}

// userForRecipients maps the session recipients to a filter user. Detection
// state is per-mailbox; multi-recipient messages use the first resolvable
// mailbox.
func userForRecipients(recipients []string, defaultUser string) string {
	for _, recipient := range recipients {
		if mailbox := mailboxFromAddress(recipient); mailbox != "" {
			return mailbox
		}
	}
	return defaultUser
}

// summarizeReasons renders the strongest per-signal reasons for the stamp
// header, highest weighted contribution first
func summarizeReasons(result *core.DetectionResult) string {
	if len(result.Scores) == 0 {
		return "no signals"
	}
	scores := make([]core.DetectionScore, len(result.Scores))
	copy(scores, result.Scores)
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score*scores[i].Confidence > scores[j].Score*scores[j].Confidence
	})

	limit := 2
	if len(scores) < limit {
		limit = len(scores)
	}
	reasons := make([]string, 0, limit)
	for _, score := range scores[:limit] {
		reasons = append(reasons, fmt.Sprintf("%s: %s", score.Method, score.Reason))
	}
	return strings.Join(reasons, "; ")
}
