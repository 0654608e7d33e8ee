// Command hpuworker runs one rank of a hybrid-parallel MapReduce job: it
// hosts the HTTP endpoints internal/parallel.Cluster uses for barrier,
// all-to-all, and all-reduce collectives, waits for its peers (per the
// roster in its config file) to come up, then drives a demonstration
// word-count MapReduce job and reports its local share of the result.
//
// It reads required configuration from the environment, starts an HTTP
// server in a goroutine, waits for peers before doing useful work, then
// blocks on a shutdown signal.
//
// Required environment:
//   - HPU_RANK: this process's rank, in [0, len(Addrs))
//   - HPU_CONFIG: path to a YAML config (see internal/parallel.Config) whose
//     addrs field lists every rank's base URL, indexed by rank
//
// Optional environment:
//   - HPU_LISTEN: local listen address (default: ":<port>" with the port
//     taken from addrs[rank], listening on all interfaces)
package main

import (
	"context"
	"hash/fnv"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/hpu/internal/codec"
	"github.com/dreamware/hpu/internal/distrange"
	"github.com/dreamware/hpu/internal/parallel"
	"github.com/dreamware/hpu/internal/reducer"
	"github.com/dreamware/hpu/internal/telemetry"
)

func main() {
	rank := mustGetenvInt("HPU_RANK")
	cfgPath := mustGetenv("HPU_CONFIG")

	cfg, err := parallel.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if len(cfg.Addrs) == 0 {
		log.Fatalf("config %s has no addrs", cfgPath)
	}

	listen := getenv("HPU_LISTEN", listenAddrFor(cfg.Addrs, rank))

	cluster, err := parallel.NewCluster(rank, listen, cfg.Addrs, cfg.Threads)
	if err != nil {
		log.Fatalf("start cluster: %v", err)
	}
	log.Printf("hpuworker[rank=%d] listening on %s (size=%d, threads=%d)", rank, listen, cluster.Size(), cluster.Threads())

	peerAddrs := make([]string, 0, len(cfg.Addrs)-1)
	for r, addr := range cfg.Addrs {
		if r != rank {
			peerAddrs = append(peerAddrs, addr)
		}
	}
	waitForPeers(peerAddrs)

	runDemoJob(cluster)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cluster.Close(ctx); err != nil {
		log.Printf("cluster shutdown error: %v", err)
	}
	log.Printf("hpuworker[rank=%d] stopped", rank)
}

// waitForPeers polls every peer's /health endpoint until all are reachable
// or 10 attempts (roughly 4 seconds) have passed. There is nothing to
// register, only peers to wait on, since membership is static.
func waitForPeers(peerAddrs []string) {
	if len(peerAddrs) == 0 {
		return
	}
	mon := parallel.NewHealthMonitor(peerAddrs, time.Second)
	for i := 0; i < 10; i++ {
		_ = mon.CheckOnce(context.Background())
		up := true
		for _, s := range mon.Status() {
			if !s.Healthy {
				up = false
				break
			}
		}
		if up {
			log.Printf("all %d peers reachable", len(peerAddrs))
			return
		}
		time.Sleep(400 * time.Millisecond)
	}
	log.Printf("proceeding without confirming all peers are up; collectives will block until they are")
}

// runDemoJob drives a small word-count MapReduce over a fixed in-memory
// corpus and logs this rank's share of the resulting distributed map.
func runDemoJob(cluster *parallel.Cluster) {
	corpus := []string{
		"the quick brown fox jumps over the lazy dog",
		"pack my box with five dozen liquor jugs",
		"how vexingly quick daft zebras jump",
	}

	dm, err := distrange.MapReduce[string, int64](
		context.Background(),
		cluster,
		distrange.DistRange{Lo: 0, Hi: len(corpus)},
		func(i int, emit func(key string, value int64)) {
			for _, w := range splitFields(corpus[i]) {
				emit(w, 1)
			}
		},
		reducer.Sum[int64],
		hashString,
		distrange.Codecs[string, int64]{Key: codec.Gob[string]{}, Value: codec.Gob[int64]{}},
		cluster.Rank() == 0,
	)
	if err != nil {
		log.Printf("demo job failed: %v", err)
		return
	}

	telemetry.Statusln(cluster.Rank(), "demo job done, local keys:", dm.LocalNKeys())
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

func listenAddrFor(addrs []string, rank int) string {
	u, err := url.Parse(addrs[rank])
	if err != nil {
		return ":9000"
	}
	return ":" + u.Port()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustGetenv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}

func mustGetenvInt(k string) int {
	v := mustGetenv(k)
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("env %s must be an integer: %v", k, err)
	}
	return n
}
