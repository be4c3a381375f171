package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunProbesReportsEachOutcome(t *testing.T) {
	refused := errors.New("refused")
	probes := []probe{
		{name: "ok", check: func(context.Context) (string, error) { return "fine", nil }},
		{name: "down", check: func(context.Context) (string, error) { return "", refused }},
	}
	var stdout, stderr bytes.Buffer
	err := runProbes(context.Background(), probes, &stdout, &stderr)
	if !errors.Is(err, refused) || !strings.HasPrefix(err.Error(), "down:") {
		t.Fatalf("expected down probe error, got %v", err)
	}
	if !strings.Contains(stdout.String(), "ok: fine") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "down: refused") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunProbesAllHealthy(t *testing.T) {
	probes := []probe{
		{name: "kafka", check: func(context.Context) (string, error) { return "connected", nil }},
		{name: "redis", check: func(context.Context) (string, error) { return "reachable", nil }},
	}
	var stdout, stderr bytes.Buffer
	if err := runProbes(context.Background(), probes, &stdout, &stderr); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stdout.String() != "kafka: connected\nredis: reachable\n" || stderr.Len() != 0 {
		t.Fatalf("unexpected output stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

func TestCheckKafkaUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := checkKafka(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("expected error for unreachable broker")
	}
}
