package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSealSecretRoundTrip(t *testing.T) {
	sealed, err := SealSecret("sk-test-1234", "passphrase")
	if err != nil {
		t.Fatalf("SealSecret: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}

	plain, err := OpenSecret(sealed, "passphrase")
	if err != nil {
		t.Fatalf("OpenSecret: %v", err)
	}
	if plain != "sk-test-1234" {
		t.Fatalf("got %q", plain)
	}

	if _, err := OpenSecret(sealed, "wrong"); err == nil {
		t.Fatal("expected error with wrong passphrase")
	}
}

func TestSealSecretWithoutPassphraseIsNoop(t *testing.T) {
	v, err := SealSecret("plain", "")
	if err != nil || v != "plain" {
		t.Fatalf("got %q, %v", v, err)
	}
	v, err = OpenSecret("plain", "")
	if err != nil || v != "plain" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("abcdef123"); got != "*****f123" {
		t.Fatalf("got %q", got)
	}
	if got := MaskSecret("abc"); got != "***" {
		t.Fatalf("got %q", got)
	}
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter(MetricSynthesisCalls)
	m.AddCounter(MetricSynthesisCalls, 2)
	m.IncGauge(MetricScenesGenerating)
	m.IncGauge(MetricScenesGenerating)
	m.DecGauge(MetricScenesGenerating)
	m.RecordHistogram(MetricSynthesisLatency, 10)
	m.RecordHistogram(MetricSynthesisLatency, 30)
	m.ObserveDuration(MetricSynthesisLatency, time.Now())

	if got := m.GetCounterValue(MetricSynthesisCalls); got != 3 {
		t.Fatalf("counter = %d, want 3", got)
	}
	if got := m.GetGauge(MetricScenesGenerating); got != 1 {
		t.Fatalf("gauge = %d, want 1", got)
	}

	snapshot := m.GetMetrics()
	hist := snapshot["histograms"].(map[string]map[string]int64)[MetricSynthesisLatency]
	if hist["count"] != 3 || hist["max"] != 30 || hist["min"] != 0 {
		t.Fatalf("unexpected histogram %+v", hist)
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "app.log")
	if err := InitLogger(logFile); err != nil {
		t.Fatalf("InitLogger: %v", err)
	}

	logger := GetLogger()
	logger.Info("anchor saved", map[string]interface{}{"kind": "characters", "err": errors.New("none")})
	if err := logger.Sync(); err != nil {
		// stdout sync fails on some platforms; the file sink is what matters
		t.Logf("sync: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file should not be empty")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{"debug": DEBUG, "WARN": WARNING, "error": ERROR, "": INFO}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
