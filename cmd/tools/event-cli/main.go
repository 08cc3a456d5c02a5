package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	vsync "github.com/annel0/voxel-world/internal/sync"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05.000"
)

func main() {
	var (
		natsURL  = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream   = flag.String("stream", "VOXEL_EVENTS", "JetStream stream name")
		command  = flag.String("cmd", "tail", "Command: tail, stats")
		types    = flag.String("types", eventbus.TypeExposureBatch, "Event types filter (comma-separated)")
		sources  = flag.String("sources", "", "Sources filter (comma-separated)")
		limit    = flag.Int("limit", 100, "Maximum number of events for tail")
		follow   = flag.Bool("follow", false, "Follow new events (like tail -f)")
		duration = flag.Duration("for", 30*time.Second, "Collection window for stats")
		verbose  = flag.Bool("v", false, "Print every position of a batch")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	filter := eventbus.Filter{Types: parseStringList(*types), Sources: parseStringList(*sources)}

	switch *command {
	case "tail":
		err = tailEvents(ctx, bus, filter, *limit, *follow, *verbose)
	case "stats":
		err = showStats(ctx, bus, filter, *duration)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// tailEvents выводит события по мере поступления
func tailEvents(ctx context.Context, bus eventbus.EventBus, f eventbus.Filter, limit int, follow, verbose bool) error {
	fmt.Printf("🎬 Tailing events (limit: %d, follow: %v)\n", limit, follow)

	var count atomic.Int64
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		printEvent(ev, verbose)
		if n := count.Add(1); !follow && n >= int64(limit) {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	fmt.Printf("\n📊 Total events: %d\n", count.Load())
	return nil
}

type batchStats struct {
	mu       sync.Mutex
	events   map[string]int
	entered  int
	left     int
	bytes    int
	first    uint64
	last     uint64
	gaps     int
	failures int
}

func (s *batchStats) add(ev *eventbus.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.EventType]++
	s.bytes += len(ev.Payload)
	if ev.EventType != eventbus.TypeExposureBatch {
		return
	}
	b, err := decodeBatch(ev)
	if err != nil {
		s.failures++
		return
	}
	s.entered += len(b.Delta.Entered)
	s.left += len(b.Delta.Left)
	if s.first == 0 {
		s.first = b.FromVersion
	} else if b.FromVersion != s.last+1 {
		s.gaps++
	}
	s.last = b.ToVersion
}

// showStats собирает статистику пакетов за окно d
func showStats(ctx context.Context, bus eventbus.EventBus, f eventbus.Filter, d time.Duration) error {
	fmt.Printf("📊 Collecting event statistics for %v\n", d)

	stats := &batchStats{events: make(map[string]int)}
	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		stats.add(ev)
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	sub.Unsubscribe()

	stats.mu.Lock()
	defer stats.mu.Unlock()

	fmt.Println("\nBy event type:")
	for t, n := range stats.events {
		fmt.Printf("  %s: %d events\n", t, n)
	}
	fmt.Printf("Payload bytes: %d\n", stats.bytes)
	if stats.first != 0 {
		fmt.Printf("Versions: %d..%d (gaps: %d)\n", stats.first, stats.last, stats.gaps)
	}
	fmt.Printf("Exposure: +%d / -%d\n", stats.entered, stats.left)
	if stats.failures > 0 {
		fmt.Printf("⚠️  Undecodable batches: %d\n", stats.failures)
	}
	return nil
}

func decodeBatch(ev *eventbus.Envelope) (vsync.Batch, error) {
	enc, err := vsync.EncoderFor(ev.Metadata["encoding"])
	if err != nil {
		return vsync.Batch{}, err
	}
	return enc.Decode(ev.Payload)
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope, verbose bool) {
	fmt.Printf("[%s] %s [%s] %s\n",
		ev.Timestamp.Local().Format(timeFormat),
		ev.Source,
		ev.EventType,
		ev.ID)

	if ev.EventType != eventbus.TypeExposureBatch {
		return
	}
	b, err := decodeBatch(ev)
	if err != nil {
		fmt.Printf("  ⚠️  %v\n", err)
		return
	}
	fmt.Printf("  Versions: %d..%d Changes: %d Entered: %d Left: %d (%s, %d bytes)\n",
		b.FromVersion, b.ToVersion, b.Changes,
		len(b.Delta.Entered), len(b.Delta.Left),
		ev.Metadata["encoding"], len(ev.Payload))
	if verbose {
		for _, p := range b.Delta.Entered {
			fmt.Printf("    + (%d,%d,%d)\n", p.X, p.Y, p.Z)
		}
		for _, p := range b.Delta.Left {
			fmt.Printf("    - (%d,%d,%d)\n", p.X, p.Y, p.Z)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
