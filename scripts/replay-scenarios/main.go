// replay-scenarios: runs every scenario file under the given directories in
// parallel and prints a summary table. Exits non-zero if any scenario fails.
//
// Run from the module root:
//
//	go run ./scripts/replay-scenarios test/fixtures/scenarios internal/scenario/testdata
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/Mohsinsiddi/w3vault/internal/scenario"
)

const runTimeout = 30 * time.Second

// ── types ─────────────────────────────────────────────────────────────────────

type result struct {
	file    string
	name    string
	steps   int
	events  int
	claimed string
	elapsed time.Duration
	err     string
}

// ── main ──────────────────────────────────────────────────────────────────────

func main() {
	dirs := os.Args[1:]
	if len(dirs) == 0 {
		dirs = []string{filepath.Join("test", "fixtures", "scenarios")}
	}

	var files []string
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no scenario files found in", strings.Join(dirs, ", "))
		os.Exit(2)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []result
	)
	for _, file := range files {
		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			r := replay(file)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(file)
	}
	wg.Wait()

	if failed := printTable(results); failed > 0 {
		os.Exit(1)
	}
}

func replay(file string) result {
	r := result{file: file, name: "—", claimed: "—"}
	f, err := scenario.Load(file)
	if err != nil {
		r.err = shortErr(err)
		return r
	}
	r.name = f.Name

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	rep, err := scenario.Run(ctx, f)
	r.elapsed = time.Since(start)
	if rep != nil {
		r.steps = len(rep.Steps)
		r.events = len(rep.Envelopes)
		r.claimed = rep.TotalClaimed.String()
	}
	if err != nil {
		r.err = shortErr(err)
	}
	return r
}

// ── output ────────────────────────────────────────────────────────────────────

func printTable(results []result) int {
	sort.Slice(results, func(i, j int) bool { return results[i].file < results[j].file })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSCENARIO\tSTEPS\tEVENTS\tCLAIMED (base units)\tTIME\tRESULT")
	fmt.Fprintln(w, strings.Repeat("-", 20)+"\t"+
		strings.Repeat("-", 24)+"\t"+
		strings.Repeat("-", 5)+"\t"+
		strings.Repeat("-", 6)+"\t"+
		strings.Repeat("-", 20)+"\t"+
		strings.Repeat("-", 8)+"\t"+
		strings.Repeat("-", 12))

	failed := 0
	for _, r := range results {
		status := "ok"
		if r.err != "" {
			status = r.err
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			filepath.Base(r.file), r.name, strconv.Itoa(r.steps), strconv.Itoa(r.events),
			r.claimed, r.elapsed.Round(time.Microsecond), status)
	}
	w.Flush()
	fmt.Printf("\n%d scenario(s), %d failed\n", len(results), failed)
	return failed
}

// ── helpers ───────────────────────────────────────────────────────────────────

func shortErr(err error) string {
	s := err.Error()
	if len(s) > 60 {
		return s[:60] + "…"
	}
	return s
}
