// Command demo runs a fixed five-acceptor, one-proposer, one-learner
// simulation to completion and prints the chosen value. It is a worked
// example, not a sweep harness — a caller wanting to vary parameters
// across runs imports internal/driver directly.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/paxossim/quorum/internal/driver"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	cfg := driver.Config{
		NumProposers: 1,
		NumAcceptors: 5,
		NumLearners:  1,

		DropRate:      0.1,
		DelayMin:      5 * time.Millisecond,
		DelayMax:      20 * time.Millisecond,
		GlobalTimeout: 10 * time.Second,

		InitialValue: []byte("hello, paxos!"),
		Logger:       logger,
	}

	metrics, err := driver.Run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	fmt.Printf("run %s: decided=%v timed_out=%v rounds=%d latency=%.3fs\n",
		metrics.RunID, metrics.Decided, metrics.TimedOut, metrics.Rounds, metrics.LatencySeconds)
	if metrics.Decided {
		fmt.Printf("chosen value: %q\n", string(metrics.FinalValue))
	}
	fmt.Printf("messages sent=%d dropped=%d retried=%d\n",
		metrics.MessagesSent, metrics.MessagesDropped, metrics.TotalRetries)
}
