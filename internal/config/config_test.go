package config

import (
	"testing"
	"time"
)

func testConfig() *Config {
	return NewFromViper(NewEmptyViper())
}

func TestDetectionDefaults(t *testing.T) {
	cfg := testConfig()

	detection, err := cfg.GetDetection()
	if err != nil {
		t.Fatalf("GetDetection failed: %v", err)
	}
	if detection.NewsletterThreshold != 0.7 {
		t.Errorf("newsletter threshold = %v, want 0.7", detection.NewsletterThreshold)
	}
	if detection.RejectThreshold != 0.3 {
		t.Errorf("reject threshold = %v, want 0.3", detection.RejectThreshold)
	}
	if detection.GuessThreshold != 0.5 {
		t.Errorf("guess threshold = %v, want 0.5", detection.GuessThreshold)
	}
	if detection.SnapshotTTL != 168*time.Hour {
		t.Errorf("snapshot TTL = %v, want 168h", detection.SnapshotTTL)
	}
	if detection.Weights["header_analysis"] != 0.4 {
		t.Errorf("header weight = %v, want 0.4", detection.Weights["header_analysis"])
	}
	if detection.Weights["sender_reputation"] != 0.1 {
		t.Errorf("reputation weight = %v, want 0.1", detection.Weights["sender_reputation"])
	}
}

func TestDetectionWeightOverrides(t *testing.T) {
	v := NewEmptyViper()
	v.Set("detection.weights.header_analysis", 0.6)
	// Integer-typed config values still parse
	v.Set("detection.weights.esp_domain", 1)
	cfg := NewFromViper(v)

	detection, err := cfg.GetDetection()
	if err != nil {
		t.Fatalf("GetDetection failed: %v", err)
	}
	if detection.Weights["header_analysis"] != 0.6 {
		t.Errorf("header weight = %v, want the override 0.6", detection.Weights["header_analysis"])
	}
	if detection.Weights["esp_domain"] != 1.0 {
		t.Errorf("esp weight = %v, want 1.0", detection.Weights["esp_domain"])
	}
}

func TestVerificationDefaults(t *testing.T) {
	cfg := testConfig()

	verification, err := cfg.GetVerification()
	if err != nil {
		t.Fatalf("GetVerification failed: %v", err)
	}
	if verification.TTL != 72*time.Hour {
		t.Errorf("TTL = %v, want 72h", verification.TTL)
	}
	if verification.SweepFrequency != time.Hour {
		t.Errorf("sweep frequency = %v, want 1h", verification.SweepFrequency)
	}
}

func TestLearningDefaults(t *testing.T) {
	cfg := testConfig()

	learning := cfg.GetLearning()
	if learning.LearningRate != 0.1 {
		t.Errorf("learning rate = %v, want 0.1", learning.LearningRate)
	}
	if learning.RemoveDelta != -0.5 {
		t.Errorf("remove delta = %v, want -0.5", learning.RemoveDelta)
	}
	if learning.MaxWeight != 1.0 {
		t.Errorf("max weight = %v, want 1.0", learning.MaxWeight)
	}
}

func TestServerDefaults(t *testing.T) {
	cfg := testConfig()

	server := cfg.GetServer()
	if server.FilterType != "smtp" {
		t.Errorf("filter type = %q, want smtp", server.FilterType)
	}
	if server.ListenAddress != "0.0.0.0:10025" {
		t.Errorf("listen address = %q", server.ListenAddress)
	}
	if server.NewsletterHeader != "X-Newsletter" {
		t.Errorf("newsletter header = %q", server.NewsletterHeader)
	}
}

func TestStoreDefaults(t *testing.T) {
	cfg := testConfig()

	store, err := cfg.GetStore()
	if err != nil {
		t.Fatalf("GetStore failed: %v", err)
	}
	if store.Type != "memory" {
		t.Errorf("store type = %q, want memory", store.Type)
	}
	if store.CleanupFrequency != time.Hour {
		t.Errorf("cleanup frequency = %v, want 1h", store.CleanupFrequency)
	}
}
