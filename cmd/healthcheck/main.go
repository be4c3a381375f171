package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"fragment-loader/common"
	"fragment-loader/internal/store"
)

// probe is one dependency check; it returns a short detail line on success.
type probe struct {
	name  string
	check func(ctx context.Context) (string, error)
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	timeout := common.ParseDuration(common.GetEnv("HEALTHCHECK_TIMEOUT", "5s"), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	statusStore := store.NewRedisStatusStore(redisAddr, "fragments:load:", time.Hour)
	defer statusStore.Close()

	probes := []probe{
		{name: "kafka", check: func(ctx context.Context) (string, error) { return checkKafka(ctx, broker) }},
		{name: "redis", check: func(ctx context.Context) (string, error) {
			if err := statusStore.Ping(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("reachable at %s", redisAddr), nil
		}},
	}
	if err := runProbes(ctx, probes, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// runProbes runs the probes concurrently and reports each outcome in probe
// order. It returns the first probe error, nil when every probe passed.
func runProbes(ctx context.Context, probes []probe, stdout, stderr io.Writer) error {
	details := make([]string, len(probes))
	errs := make([]error, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			details[i], errs[i] = p.check(ctx)
			if errs[i] != nil {
				return fmt.Errorf("%s: %w", p.name, errs[i])
			}
			return nil
		})
	}
	err := g.Wait()

	for i, p := range probes {
		if errs[i] != nil {
			fmt.Fprintf(stderr, "%s: %v\n", p.name, errs[i])
			continue
		}
		fmt.Fprintf(stdout, "%s: %s\n", p.name, details[i])
	}
	return err
}

func checkKafka(ctx context.Context, broker string) (string, error) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Kafka at %s: %w", broker, err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return "", fmt.Errorf("failed to read metadata: %w", err)
	}
	return fmt.Sprintf("connected to %s (%d partitions)", broker, len(partitions)), nil
}
