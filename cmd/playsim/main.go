package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/gameclient"
	"github.com/ThanhSi1008/tilevania-sub000/internal/kafka"
	"github.com/ThanhSi1008/tilevania-sub000/internal/levelresolver"
	"github.com/ThanhSi1008/tilevania-sub000/internal/playsession"
	"github.com/ThanhSi1008/tilevania-sub000/internal/statsync"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func getPlayerName(run string, idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d_%s", playerPrefixes[prefixIdx], suffix, run)
}

type counters struct {
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
	startErrs atomic.Int64
	unlocks   atomic.Int64
}

func main() {
	// Command line flags
	serverURL := flag.String("server", "http://localhost:8080", "Session service base URL")
	totalPlayers := flag.Int("players", 10, "Number of simulated players")
	levels := flag.Int("levels", 3, "Levels each player attempts")
	playTime := flag.Duration("play-time", 3*time.Second, "Time spent in each level")
	syncInterval := flag.Duration("sync-interval", time.Second, "Stats push interval")
	brokers := flag.String("brokers", "", "Kafka brokers for stats pushes (comma-separated, empty = HTTP)")
	topic := flag.String("topic", "session-stats", "Kafka topic for stats pushes")
	adminKey := flag.String("admin-key", os.Getenv("AUTH_ADMIN_KEY"), "Operator key used to trigger a final leaderboard recompute")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Play Session Simulator")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Server:           %s\n", *serverURL)
	fmt.Printf("  Players:          %d\n", *totalPlayers)
	fmt.Printf("  Levels/player:    %d\n", *levels)
	fmt.Printf("  Stats transport:  %s\n", transportName(*brokers))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	var producer *kafka.StatsProducer
	if *brokers != "" {
		var err error
		producer, err = kafka.NewStatsProducer(strings.Split(*brokers, ","), *topic, logger)
		if err != nil {
			log.Fatalf("Failed to create producer: %v", err)
		}
		defer producer.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down...")
		cancel()
	}()

	run := fmt.Sprintf("%04d", rand.Intn(10000))
	var stats counters
	var wg sync.WaitGroup

	for i := 0; i < *totalPlayers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			client := gameclient.NewClient(*serverURL)
			name := getPlayerName(run, idx)
			if _, err := client.Register(ctx, name, strings.ToLower(name)+"@example.com", "password123"); err != nil {
				log.Printf("register %s: %v", name, err)
				return
			}
			var pusher statsync.Pusher = client
			if producer != nil {
				pusher = producer
			}

			machine := playsession.New(
				client,
				levelresolver.New(client, levelresolver.Config{}, logger),
				statsync.New(pusher, *syncInterval, logger),
				playsession.Config{},
				playsession.WithLogger(logger),
				playsession.WithUnlockHandler(func(unlocked []domain.PlayerAchievement) {
					stats.unlocks.Add(int64(len(unlocked)))
				}),
			)
			defer machine.Shutdown(context.Background())

			for level := 1; level <= *levels && ctx.Err() == nil; level++ {
				playLevel(ctx, machine, level, *playTime, &stats)
			}
		}(i)
	}

	// Progress reporting
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

loop:
	for {
		select {
		case <-done:
			break loop
		case <-statsTicker.C:
			printStats(&stats)
		}
	}

	fmt.Println()
	printStats(&stats)

	reader := gameclient.NewClient(*serverURL, gameclient.WithAdminKey(*adminKey))
	recomputeCtx, recomputeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer recomputeCancel()
	if *adminKey != "" {
		if err := reader.RecomputeLeaderboard(recomputeCtx); err != nil {
			log.Printf("recompute leaderboard: %v", err)
		}
	}
	entries, err := reader.Leaderboard(recomputeCtx, domain.PeriodAllTime, 10)
	if err != nil {
		log.Printf("fetch leaderboard: %v", err)
		return
	}
	fmt.Println("\nTop players:")
	for _, e := range entries {
		fmt.Printf("  #%-3d %-24s %d\n", e.Rank, e.Username, e.TotalScore)
	}
}

// playLevel plays one attempt: score while the clock runs, then finish,
// die out or quit
func playLevel(ctx context.Context, m *playsession.Machine, level int, playTime time.Duration, stats *counters) {
	ref := levelresolver.Ref{Scene: fmt.Sprintf("Level %d", level)}
	if err := m.EnterLevel(ctx, ref); err != nil {
		stats.startErrs.Add(1)
		return
	}
	stats.started.Add(1)

	tracker := m.Tracker()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(playTime)

	for {
		select {
		case <-ctx.Done():
			<-m.Abandon()
			stats.abandoned.Add(1)
			return
		case <-deadline:
			if rand.Intn(10) == 0 {
				<-m.Abandon()
				stats.abandoned.Add(1)
				return
			}
			<-m.Complete()
			stats.completed.Add(1)
			return
		case <-tick.C:
			switch r := rand.Intn(100); {
			case r < 40:
				tracker.AddScore(int64(rand.Intn(50) + 10))
			case r < 70:
				tracker.AddCoins(1)
			case r < 90:
				tracker.DefeatEnemy()
				tracker.AddScore(100)
			case r < 92:
				if m.State() == playsession.Active {
					<-m.Die()
				}
				if m.State() != playsession.Active {
					stats.failed.Add(1)
					return
				}
			}
		}
	}
}

func printStats(s *counters) {
	fmt.Printf("[%s] Started: %d | Completed: %d | Failed: %d | Abandoned: %d | Start errors: %d | Unlocks: %d\n",
		time.Now().Format("15:04:05"),
		s.started.Load(),
		s.completed.Load(),
		s.failed.Load(),
		s.abandoned.Load(),
		s.startErrs.Load(),
		s.unlocks.Load(),
	)
}

func transportName(brokers string) string {
	if brokers == "" {
		return "http"
	}
	return "kafka " + brokers
}
