package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/config"
	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/factory"
	"github.com/mikey/newsletter-filter/internal/logging"
	"github.com/mikey/newsletter-filter/internal/trusted"
)

var (
	// Detection flags
	newsletterThreshold = flag.Float64("threshold", 0.7, "Combined score at or above which the email is a newsletter")
	rejectThreshold     = flag.Float64("reject-threshold", 0.3, "Combined score at or below which the email is not a newsletter")
	guessThreshold      = flag.Float64("guess-threshold", 0.5, "Best-guess split inside the verification band")
	trustedDomains      = flag.String("trusted", "", "Comma-separated list of trusted domains that bypass detection")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	userID     = flag.String("user", "default", "User the email belongs to")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	// One-shot runs keep all state in memory
	storeFactory := factory.NewStoreFactory(cfg, logger)
	dataStore, err := storeFactory.CreateStore()
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer dataStore.Stop()

	analyzerFactory := factory.NewAnalyzerFactory(cfg, logger)
	analyzers, err := analyzerFactory.CreateAnalyzers(dataStore)
	if err != nil {
		logger.Fatal("Failed to create analyzers", zap.Error(err))
	}

	detectionCfg, err := cfg.GetDetection()
	if err != nil {
		logger.Fatal("Invalid detection configuration", zap.Error(err))
	}
	trustedChecker := trusted.NewChecker(detectionCfg.TrustedDomains, logger)

	// No verifier: a one-shot run never opens verification requests
	service := core.NewDetectionService(
		analyzers,
		dataStore,
		dataStore,
		nil,
		trustedChecker,
		logger,
		core.DetectionBands{
			NewsletterThreshold: detectionCfg.NewsletterThreshold,
			RejectThreshold:     detectionCfg.RejectThreshold,
			GuessThreshold:      detectionCfg.GuessThreshold,
		},
		detectionCfg.SnapshotTTL,
	)

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	from := msg.Header.Get("From")
	to := msg.Header.Get("To")
	subject := msg.Header.Get("Subject")

	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}
	body := string(bodyBytes)

	email := &core.Email{
		ID:        msg.Header.Get("Message-ID"),
		MessageID: msg.Header.Get("Message-ID"),
		From:      from,
		To:        strings.Split(to, ","),
		Subject:   subject,
		Body:      body,
		Headers:   make(map[string][]string),
	}
	for k, v := range msg.Header {
		email.Headers[k] = v
	}
	if email.ID == "" {
		email.ID = fmt.Sprintf("cli-%d", time.Now().UnixNano())
	}

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("To: %s\n", to)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Body length: %d bytes\n", len(body))
	fmt.Printf("\n")

	fmt.Printf("=== Analysis ===\n")
	fmt.Printf("Newsletter threshold: %.2f\n", detectionCfg.NewsletterThreshold)
	fmt.Printf("Reject threshold: %.2f\n", detectionCfg.RejectThreshold)

	startTime := time.Now()
	result, err := service.AnalyzeEmail(context.Background(), *userID, email)
	if err != nil {
		logger.Fatal("Failed to analyze email", zap.Error(err))
	}
	duration := time.Since(startTime)

	// Print per-signal breakdown
	fmt.Printf("\n=== Signals ===\n")
	for _, score := range result.Scores {
		fmt.Printf("%-20s score=%.4f confidence=%.4f  %s\n",
			score.Method, score.Score, score.Confidence, score.Reason)
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Is newsletter: %t\n", result.IsNewsletter)
	fmt.Printf("Combined score: %.4f\n", result.CombinedScore)
	fmt.Printf("Needs verification: %t\n", result.NeedsVerification)
	fmt.Printf("Processing time: %v\n", duration)
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("detection.newsletter_threshold", *newsletterThreshold)
	v.Set("detection.reject_threshold", *rejectThreshold)
	v.Set("detection.guess_threshold", *guessThreshold)

	if *trustedDomains != "" {
		domains := strings.Split(*trustedDomains, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		v.Set("detection.trusted_domains", domains)
	} else {
		v.Set("detection.trusted_domains", []string{})
	}

	// One-shot runs never need a persistent store
	v.Set("store.type", "memory")

	return config.NewFromViper(v)
}
