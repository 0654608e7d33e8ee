// Command hpulaunch spawns one hpuworker child process per rank listed in
// a roster config and waits for them to exit, restarting nothing and
// reassigning nothing -- membership is fixed for the lifetime of a run.
// Process membership is part of the job's static configuration rather
// than discovered at runtime, so this launcher starts a fixed set of
// known worker processes instead of accepting registrations from a
// dynamic fleet.
//
// Required environment:
//   - HPU_CONFIG: path to a YAML roster (see internal/parallel.Config)
//
// Optional environment:
//   - HPU_WORKER_BIN: path to the hpuworker binary (default: "hpuworker",
//     resolved through $PATH)
package main

import (
	"context"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/dreamware/hpu/internal/parallel"
)

func main() {
	cfgPath := mustGetenv("HPU_CONFIG")
	workerBin := getenv("HPU_WORKER_BIN", "hpuworker")

	cfg, err := parallel.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if len(cfg.Addrs) == 0 {
		log.Fatalf("config %s has no addrs", cfgPath)
	}
	log.Printf("hpulaunch: starting %d ranks from %s", len(cfg.Addrs), cfgPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	procs := make([]*exec.Cmd, len(cfg.Addrs))
	var wg sync.WaitGroup
	exitErrs := make([]error, len(cfg.Addrs))

	for r := range cfg.Addrs {
		r := r
		cmd := exec.CommandContext(ctx, workerBin)
		cmd.Env = append(os.Environ(),
			"HPU_RANK="+strconv.Itoa(r),
			"HPU_CONFIG="+cfgPath,
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		procs[r] = cmd

		if err := cmd.Start(); err != nil {
			log.Fatalf("start rank %d: %v", r, err)
		}
		log.Printf("hpulaunch: rank %d started (pid %d)", r, cmd.Process.Pid)

		wg.Add(1)
		go func() {
			defer wg.Done()
			exitErrs[r] = cmd.Wait()
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("hpulaunch: signal received, stopping all ranks")
		cancel()
	}()

	wg.Wait()
	for r, err := range exitErrs {
		if err != nil {
			log.Printf("rank %d exited: %v", r, err)
		}
	}
	log.Printf("hpulaunch: all ranks stopped")
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
