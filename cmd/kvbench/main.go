package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pior/kvbench"
)

func main() {
	var (
		servers    = flag.String("servers", "localhost:11211", "Replica set, \"host1:port1|host2:port2\"")
		protocol   = flag.String("protocol", "ascii", "Wire protocol: ascii, binary, http, etcd")
		connection = flag.Int("connections", 1, "Number of Connections in the fleet")

		lambda      = flag.Float64("lambda", 0, "Target aggregate arrival rate, ops/s (0 disables pacing)")
		qps         = flag.Int("qps", 0, "Convenience alias for -lambda expressed as whole ops/s")
		lambdaDenom = flag.Int("lambda-denom", 1, "Divisor applied to -qps before it becomes -lambda, e.g. per-connection fan-out")
		depth       = flag.Int("depth", 1, "Per-session outstanding-operation ceiling")

		records   = flag.Int("records", 10000, "Key-space cardinality")
		update    = flag.Float64("update", 0.1, "SET probability during steady state")
		keySize   = flag.String("key-size", "fixed:16", "Key size distribution: fixed:N or uniform:MIN,MAX (validated only; keys are the zero-padded record index)")
		valueSize = flag.String("value-size", "fixed:64", "Value size distribution: fixed:N or uniform:MIN,MAX")

		duration = flag.Int("time", 10, "Run duration, seconds")
		loadOnly = flag.Bool("loadonly", false, "Exit after the warm-up loader phase")
		noLoad   = flag.Bool("noload", false, "Skip the warm-up loader phase")

		sasl     = flag.Bool("sasl", false, "Enable SASL PLAIN auth (binary protocol only)")
		username = flag.String("username", "", "SASL username")
		password = flag.String("password", "", "SASL password")

		linear    = flag.Bool("linear", false, "Linearizable (quorum) reads, etcd only")
		noNodelay = flag.Bool("no-nodelay", false, "Do not set TCP_NODELAY")
		moderate  = flag.Bool("moderate", false, "Enable post-response issuance cooldown")
		skip      = flag.Bool("skip", false, "Enable backpressure skip-compensation")

		shard             = flag.Bool("shard", false, "Spread traffic across sessions by key hash")
		roundRobin        = flag.Bool("roundrobin", false, "Spread traffic across sessions round-robin")
		warmupConnections = flag.Int("warmup-connections", 0, "Cap of fleet Connections that load the key space (0 = all)")
		reserve           = flag.Int("reserve", 0, "Presize a raw latency sample buffer of this size (0 disables sampling)")
	)
	flag.Parse()

	opt := &kvbench.Options{
		Lambda:            resolveLambda(*lambda, *qps, *lambdaDenom),
		Records:           *records,
		Depth:             *depth,
		Update:            *update,
		Time:              *duration,
		LoadOnly:          *loadOnly,
		NoLoad:            *noLoad,
		KeySize:           *keySize,
		ValueSize:         *valueSize,
		Protocol:          parseProtocol(*protocol),
		SASL:              *sasl,
		Username:          *username,
		Password:          *password,
		Linear:            *linear,
		NoNodelay:         *noNodelay,
		Moderate:          *moderate,
		Skip:              *skip,
		Shard:             *shard,
		RoundRobin:        *roundRobin,
		WarmupConnections: *warmupConnections,
		Reserve:           *reserve,
	}

	stats := kvbench.NewDefaultStatsWithReserve(opt)

	fleet, err := kvbench.NewFleet(*servers, *connection, opt, stats)
	if err != nil {
		log.Fatalf("kvbench: %v", err)
	}
	defer fleet.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("kvbench: %s against %s, %d connection(s), protocol=%s\n", opName(opt), *servers, *connection, *protocol)

	if err := fleet.StartAll(ctx); err != nil {
		log.Fatalf("kvbench: start: %v", err)
	}

	if !opt.NoLoad {
		loadStart := time.Now()
		if err := fleet.LoadAll(ctx); err != nil {
			log.Fatalf("kvbench: load: %v", err)
		}
		fmt.Printf("kvbench: loaded %d records in %v\n", opt.Records, time.Since(loadStart))
	}

	if opt.LoadOnly {
		printSummary(stats)
		return
	}

	runStart := time.Now()
	if err := fleet.RunAll(ctx); err != nil {
		log.Fatalf("kvbench: run: %v", err)
	}
	fmt.Printf("kvbench: ran for %v\n", time.Since(runStart))

	printSummary(stats)
}

func resolveLambda(lambda float64, qps, lambdaDenom int) float64 {
	if lambda > 0 {
		return lambda
	}
	if lambdaDenom <= 0 {
		lambdaDenom = 1
	}
	return float64(qps) / float64(lambdaDenom)
}

func parseProtocol(s string) kvbench.Protocol {
	switch s {
	case "binary":
		return kvbench.ProtocolBinary
	case "http":
		return kvbench.ProtocolHTTP
	case "etcd":
		return kvbench.ProtocolEtcd
	default:
		return kvbench.ProtocolAscii
	}
}

func opName(opt *kvbench.Options) string {
	if opt.Lambda > 0 {
		return fmt.Sprintf("open-loop (%.0f ops/s)", opt.Lambda)
	}
	return "closed-loop"
}

func printSummary(stats *kvbench.DefaultStats) {
	s := stats.Snapshot()
	fmt.Println()
	fmt.Println("Results")
	fmt.Println("=======")
	fmt.Printf("GETs:           %d (misses: %d)\n", s.Gets, s.GetMisses)
	fmt.Printf("SETs:           %d\n", s.Sets)
	fmt.Printf("Ops issued:     %d\n", s.OpsIssued)
	fmt.Printf("Skips:          %d\n", s.Skips)
	fmt.Printf("Leader switches: %d\n", s.LeaderSwitch)
	fmt.Printf("Tx/Rx bytes:    %d / %d\n", s.TxBytes, s.RxBytes)
	fmt.Printf("GET latency:    mean=%v min=%v max=%v (n=%d)\n", s.GetLatency.Mean, s.GetLatency.Min, s.GetLatency.Max, s.GetLatency.Count)
	fmt.Printf("SET latency:    mean=%v min=%v max=%v (n=%d)\n", s.SetLatency.Mean, s.SetLatency.Min, s.SetLatency.Max, s.SetLatency.Count)
}
