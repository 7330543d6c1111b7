/*
	Basic Script that generates random data to help create lots of files for testing.

	Every worker overwrites and deletes keys from a small fixed universe, so
	most of what lands on disk is garbage. At the end a COMPACT is issued and
	the server's STATS are printed to show how much space was reclaimed.
*/

package main

import (
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omriShneor/rustdex/bitcask"
	"github.com/omriShneor/rustdex/internal"
)

type options struct {
	host        string
	port        int
	workers     int
	cycles      int
	keys        int
	values      int
	writes      int
	deletes     int
	pause       time.Duration
	progress    int
	skipCompact bool
}

type counters struct {
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64
}

func main() {
	var opts options
	flag.StringVar(&opts.host, "host", internal.DEFAULT_HOST, "Bitcask server host")
	flag.IntVar(&opts.port, "port", internal.DEFAULT_PORT, "Bitcask server port")
	flag.IntVar(&opts.workers, "workers", 6, "Concurrent client connections")
	flag.IntVar(&opts.cycles, "cycles", 5000, "Cycles per worker")
	flag.IntVar(&opts.keys, "keys", 100, "Size of the key universe")
	flag.IntVar(&opts.values, "values", 100, "Number of distinct values")
	flag.IntVar(&opts.writes, "writes", 20, "SETs per cycle (half as many again are rewrites)")
	flag.IntVar(&opts.deletes, "deletes", 10, "DELETEs per cycle")
	flag.DurationVar(&opts.pause, "pause", 10*time.Millisecond, "Sleep between cycles")
	flag.IntVar(&opts.progress, "progress", 500, "Report progress every N cycles")
	flag.BoolVar(&opts.skipCompact, "no-compact", false, "Do not issue COMPACT at the end")
	flag.Parse()

	start := time.Now()
	fmt.Println("Starting Bitcask churn-heavy load generator")

	keys := makeKeys(opts.keys)
	values := makeValues(opts.values)

	var c counters
	var wg sync.WaitGroup

	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := runWorker(id, &opts, &c, keys, values); err != nil {
				c.errors.Add(1)
				fmt.Printf("[worker %d] %v\n", id, err)
			}
		}(i)
	}

	wg.Wait()
	fmt.Printf("Load finished in %v: %d sets, %d deletes, %d failed workers\n",
		time.Since(start), c.sets.Load(), c.deletes.Load(), c.errors.Load())

	if opts.skipCompact {
		return
	}
	if err := compactAndReport(&opts); err != nil {
		fmt.Println(err)
	}
}

func connect(opts *options) (*bitcask.Client, error) {
	return bitcask.Connect(bitcask.WithHost(opts.host), bitcask.WithPort(opts.port))
}

func runWorker(id int, opts *options, c *counters, keys []string, values []string) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	pick := func(s []string) string { return s[rng.Intn(len(s))] }

	client, err := connect(opts)
	if err != nil {
		return fmt.Errorf("connect error: %w", err)
	}
	defer client.Close()

	for cycle := 1; cycle <= opts.cycles; cycle++ {
		// Writes, deletes, then rewrites so overwritten values pile up.
		for i := 0; i < opts.writes; i++ {
			if err := client.Set(pick(keys), pick(values)); err != nil {
				return fmt.Errorf("SET error: %w", err)
			}
			c.sets.Add(1)
		}

		for i := 0; i < opts.deletes; i++ {
			if err := client.Delete(pick(keys)); err != nil {
				return fmt.Errorf("DELETE error: %w", err)
			}
			c.deletes.Add(1)
		}

		for i := 0; i < opts.writes/2; i++ {
			if err := client.Set(pick(keys), pick(values)); err != nil {
				return fmt.Errorf("REWRITE error: %w", err)
			}
			c.sets.Add(1)
		}

		if opts.progress > 0 && cycle%opts.progress == 0 {
			fmt.Printf("[worker %d] completed %d cycles\n", id, cycle)
		}

		if opts.pause > 0 {
			time.Sleep(opts.pause)
		}
	}
	return nil
}

func compactAndReport(opts *options) error {
	client, err := connect(opts)
	if err != nil {
		return fmt.Errorf("connect error: %w", err)
	}
	defer client.Close()

	before, err := client.Stats()
	if err != nil {
		return fmt.Errorf("STATS error: %w", err)
	}

	start := time.Now()
	if err := client.Compact(); err != nil {
		return fmt.Errorf("COMPACT error: %w", err)
	}
	took := time.Since(start)

	after, err := client.Stats()
	if err != nil {
		return fmt.Errorf("STATS error: %w", err)
	}

	fmt.Printf("----- BEFORE COMPACT -----\n%s\n----- AFTER COMPACT (%v) -----\n%s\n", before, took, after)
	return nil
}

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%03d", i)
	}
	return keys
}

func makeValues(n int) []string {
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = fmt.Sprintf("value-%03d-xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", i)
	}
	return values
}
