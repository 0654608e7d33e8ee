package parallel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

const (
	kindBarrier   = "barrier"
	kindAllToAll  = "alltoall"
	kindAllReduce = "allreduce"
)

// Cluster is a real multi-process Context built on plain HTTP/JSON.
//
// Topology: rank 0 plays coordinator. Every rank, including rank 0,
// submits its contribution for a collective to rank 0's
// /parallel/submit endpoint; once all Size() contributions for a given
// (kind, generation) have arrived, rank 0 computes the result and POSTs
// it to every rank's /parallel/deliver endpoint. A rank blocks on a local
// channel between submitting and being delivered its result.
type Cluster struct {
	rank    int
	addrs   []string // addrs[r] is rank r's base URL, e.g. "http://10.0.0.2:9001"
	threads int

	mu      sync.Mutex
	gens    map[string]int
	pending map[string]chan deliverResult

	coordMu sync.Mutex
	buckets map[bucketKey]*bucket

	server *http.Server
}

type bucketKey struct {
	kind string
	gen  int
}

type bucket struct {
	payload [][][]byte
	scalars []int64
	count   int
}

type submitRequest struct {
	Rank    int      `json:"rank"`
	Kind    string   `json:"kind"`
	Gen     int      `json:"gen"`
	Payload [][]byte `json:"payload,omitempty"`
	Scalar  int64    `json:"scalar,omitempty"`
}

type deliverRequest struct {
	Kind   string   `json:"kind"`
	Gen    int      `json:"gen"`
	Result [][]byte `json:"result,omitempty"`
	Scalar int64    `json:"scalar,omitempty"`
}

type deliverResult struct {
	Result [][]byte
	Scalar int64
}

// NewCluster starts an HTTP server on listenAddr and returns a Cluster
// Context for the given rank. addrs must list every rank's publicly
// reachable base URL, indexed by rank, with addrs[0] the coordinator.
func NewCluster(rank int, listenAddr string, addrs []string, threads int) (*Cluster, error) {
	if rank < 0 || rank >= len(addrs) {
		return nil, fmt.Errorf("parallel: rank %d out of range for %d addrs", rank, len(addrs))
	}
	c := &Cluster{
		rank:    rank,
		addrs:   addrs,
		threads: threads,
		gens:    make(map[string]int),
		pending: make(map[string]chan deliverResult),
		buckets: make(map[bucketKey]*bucket),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/parallel/deliver", c.handleDeliver)
	if rank == 0 {
		mux.HandleFunc("/parallel/submit", c.handleSubmit)
	}

	c.server = &http.Server{Addr: listenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return nil, fmt.Errorf("parallel: listen %s: %w", listenAddr, err)
		}
	default:
	}
	return c, nil
}

// Close shuts down this rank's HTTP server.
func (c *Cluster) Close(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

func (c *Cluster) Rank() int    { return c.rank }
func (c *Cluster) Size() int    { return len(c.addrs) }
func (c *Cluster) Threads() int { return c.threads }

func (c *Cluster) coordinatorURL() string { return c.addrs[0] }

func (c *Cluster) nextGen(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.gens[kind]
	c.gens[kind] = g + 1
	return g
}

func (c *Cluster) collective(ctx context.Context, kind string, payload [][]byte, scalar int64) (deliverResult, error) {
	gen := c.nextGen(kind)
	key := fmt.Sprintf("%s:%d", kind, gen)

	ch := make(chan deliverResult, 1)
	c.mu.Lock()
	c.pending[key] = ch
	c.mu.Unlock()

	err := postJSON(ctx, c.coordinatorURL()+"/parallel/submit", submitRequest{
		Rank: c.rank, Kind: kind, Gen: gen, Payload: payload, Scalar: scalar,
	}, nil)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return deliverResult{}, fmt.Errorf("parallel: submit %s: %w", kind, err)
	}

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return deliverResult{}, ErrBarrierAborted
	}
}

// Barrier blocks until every rank has submitted a barrier request for
// this generation.
func (c *Cluster) Barrier(ctx context.Context) error {
	_, err := c.collective(ctx, kindBarrier, nil, 0)
	return err
}

// AllToAll exchanges per-destination buffers through the coordinator.
func (c *Cluster) AllToAll(ctx context.Context, send [][]byte) ([][]byte, error) {
	res, err := c.collective(ctx, kindAllToAll, send, 0)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// AllReduceSum sums x across every rank via the coordinator.
func (c *Cluster) AllReduceSum(ctx context.Context, x int64) (int64, error) {
	res, err := c.collective(ctx, kindAllReduce, nil, x)
	if err != nil {
		return 0, err
	}
	return res.Scalar, nil
}

// handleSubmit runs only on rank 0. It accumulates one bucket per (kind,
// generation) and, once every rank has contributed, computes the result
// and fans it out via handleDeliver calls to every rank.
func (c *Cluster) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := bucketKey{kind: req.Kind, gen: req.Gen}
	c.coordMu.Lock()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{payload: make([][][]byte, c.Size()), scalars: make([]int64, c.Size())}
		c.buckets[key] = b
	}
	b.payload[req.Rank] = req.Payload
	b.scalars[req.Rank] = req.Scalar
	b.count++
	full := b.count == c.Size()
	if full {
		delete(c.buckets, key)
	}
	c.coordMu.Unlock()
	w.WriteHeader(http.StatusOK)

	if !full {
		return
	}

	switch req.Kind {
	case kindBarrier:
		c.broadcastDeliver(req.Kind, req.Gen, nil, 0)
	case kindAllReduce:
		var sum int64
		for _, s := range b.scalars {
			sum += s
		}
		c.broadcastDeliver(req.Kind, req.Gen, nil, sum)
	case kindAllToAll:
		for dest := 0; dest < c.Size(); dest++ {
			recv := make([][]byte, c.Size())
			for src := 0; src < c.Size(); src++ {
				if dest < len(b.payload[src]) {
					recv[src] = b.payload[src][dest]
				}
			}
			c.sendDeliverTo(dest, req.Kind, req.Gen, recv, 0)
		}
	}
}

func (c *Cluster) broadcastDeliver(kind string, gen int, result [][]byte, scalar int64) {
	for r := range c.addrs {
		c.sendDeliverTo(r, kind, gen, result, scalar)
	}
}

func (c *Cluster) sendDeliverTo(rank int, kind string, gen int, result [][]byte, scalar int64) {
	go func() {
		url := c.addrs[rank] + "/parallel/deliver"
		_ = postJSON(context.Background(), url, deliverRequest{
			Kind: kind, Gen: gen, Result: result, Scalar: scalar,
		}, nil)
	}()
}

// handleDeliver runs on every rank and wakes up whichever local
// collective call is waiting for this (kind, generation).
func (c *Cluster) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := fmt.Sprintf("%s:%d", req.Kind, req.Gen)
	c.mu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if ok {
		ch <- deliverResult{Result: req.Result, Scalar: req.Scalar}
	}
	w.WriteHeader(http.StatusOK)
}
