// Command perf-regression compares two `go test -bench` outputs for the guard
// hot paths and exits non-zero when a tracked metric regresses past its
// threshold.
//
//	go test -run '^$' -bench 'Evaluate|Checker' -count 5 . > new.txt
//	go run ./security/cmd/perf-regression -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	unitNs     = "ns/op"
	unitAllocs = "allocs/op"
)

// tracked lists the benchmarks gated in CI and the units checked for each.
var tracked = map[string][]string{
	"BenchmarkEvaluateHydrated":  {unitNs, unitAllocs},
	"BenchmarkEvaluateRehydrate": {unitNs, unitAllocs},
	"BenchmarkCheckerMemoized":   {unitNs, unitAllocs},
	"BenchmarkEvaluateParallel":  {unitNs},
}

// samples maps benchmark -> unit -> one value per run.
type samples map[string]map[string][]float64

// limits holds the allowed regression ratio per unit.
type limits map[string]float64

func (l limits) of(unit string) float64 {
	if v, ok := l[unit]; ok {
		return v
	}
	return l[unitNs]
}

type row struct {
	benchmark string
	unit      string
	base      float64
	candidate float64
	delta     float64
}

func main() {
	baselinePath := flag.String("baseline", "", "path to baseline benchmark output")
	candidatePath := flag.String("candidate", "", "path to candidate benchmark output")
	nsThreshold := flag.Float64("threshold", 0.30, "maximum allowed ns/op regression ratio (0.30 = +30%)")
	allocThreshold := flag.Float64("alloc-threshold", 0.10, "maximum allowed allocs/op regression ratio")
	flag.Parse()

	if *baselinePath == "" || *candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if *nsThreshold < 0 || *allocThreshold < 0 {
		fmt.Fprintln(os.Stderr, "thresholds must be >= 0")
		os.Exit(2)
	}

	baseline, err := readFile(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := readFile(*candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	rows, failures := compare(baseline, candidate, limits{unitNs: *nsThreshold, unitAllocs: *allocThreshold})
	report(os.Stdout, rows)
	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		os.Exit(1)
	}
}

// compare evaluates every tracked benchmark unit in name order.
func compare(baseline, candidate samples, lim limits) ([]row, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		rows     []row
		failures []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			b, c := baseline[name][unit], candidate[name][unit]
			if len(b) == 0 || len(c) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}

			r := row{benchmark: name, unit: unit, base: median(b), candidate: median(c)}
			switch {
			case r.base > 0:
				r.delta = (r.candidate - r.base) / r.base
			case unit == unitAllocs && r.candidate > 0:
				// a zero-alloc path that starts allocating always fails
				r.delta = 1
			case unit != unitAllocs:
				failures = append(failures, fmt.Sprintf("invalid baseline median for %s %s", name, unit))
				continue
			}
			rows = append(rows, r)

			if limit := lim.of(unit); r.delta > limit {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, r.delta*100, limit*100))
			}
		}
	}
	return rows, failures
}

func report(w io.Writer, rows []row) {
	fmt.Fprintln(w, "perf regression check:")
	fmt.Fprintln(w, "benchmark unit baseline candidate delta")
	for _, r := range rows {
		fmt.Fprintf(w, "%s %s %.3f %.3f %+0.2f%%\n", r.benchmark, r.unit, r.base, r.candidate, r.delta*100)
	}
}

func readFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

// parse reads benchmark result lines, keeping tracked benchmarks only.
// Repeated runs (-count) accumulate as separate samples.
func parse(r io.Reader) (samples, error) {
	out := samples{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}

		units, ok := out[name]
		if !ok {
			units = map[string][]float64{}
			out[name] = units
		}
		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			units[fields[i+1]] = append(units[fields[i+1]], v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// trimProcs drops the -GOMAXPROCS suffix the testing package appends.
func trimProcs(raw string) string {
	idx := strings.LastIndexByte(raw, '-')
	if idx <= 0 {
		return raw
	}
	if _, err := strconv.Atoi(raw[idx+1:]); err != nil {
		return raw
	}
	return raw[:idx]
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
