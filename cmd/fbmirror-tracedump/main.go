// fbmirror-tracedump prints the poll timing trace a mirror daemon wrote
// with -trace.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"fbmirror-go/internal/stats"
)

func main() {
	var (
		path  = flag.String("path", "", "Path to poll trace file")
		limit = flag.Int("limit", 20, "Number of records to print, 0 prints all")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	r, err := stats.NewTraceReader(f)
	if err != nil {
		log.Fatalf("read trace header: %v", err)
	}

	var (
		count     int
		printed   int
		newFrames int
		wasted    time.Duration
		first     time.Time
		last      time.Time
	)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read record %d: %v", count, err)
		}
		if first.IsZero() {
			first = rec.Time
		}
		last = rec.Time
		if *limit <= 0 || printed < *limit {
			kind := "duplicate"
			if rec.Kind == stats.KindNewFrame {
				kind = "new_frame"
			}
			fmt.Printf("%s %-9s elapsed=%v\n", rec.Time.Format(time.RFC3339Nano), kind, rec.Elapsed)
			printed++
		}
		if rec.Kind == stats.KindNewFrame {
			newFrames++
		} else {
			wasted += rec.Elapsed
		}
		count++
	}

	if count == 0 {
		fmt.Println("trace is empty")
		return
	}
	span := last.Sub(first)
	fmt.Printf("records=%d new_frames=%d duplicates=%d wasted=%v span=%v\n",
		count, newFrames, count-newFrames, wasted, span)
	if newFrames > 1 && span > 0 {
		fmt.Printf("observed rate: %.1f frames/sec\n", float64(newFrames-1)/span.Seconds())
	}
}
