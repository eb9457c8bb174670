package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cedarkv/cedar/cmd/util"
	"github.com/cedarkv/cedar/lib/config"
	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/lib/logging"
	"github.com/cedarkv/cedar/lib/memory"
)

var (
	// BenchCmd measures the throughput of the storage engine
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Performance testing tool for the storage engine",
		Long:    "",
		RunE:    run,
		PreRunE: processBenchConfig,
	}
	benchKeyPrefix = "__bench"
	benchOps       = 100000
	benchKeySpread = 100
	benchValueSize = 64
	benchSkip      = make([]string, 0)
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitEnv)

	// add flags
	key := "ops"
	BenchCmd.PersistentFlags().Int(key, 100000, util.WrapString("Number of operations per benchmark"))
	key = "keys"
	BenchCmd.PersistentFlags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "value-size"
	BenchCmd.PersistentFlags().Int(key, 64, util.WrapString("The size of the values in bytes"))
	key = "skip"
	BenchCmd.PersistentFlags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchOps = viper.GetInt("ops")
	benchKeySpread = viper.GetInt("keys")
	benchValueSize = viper.GetInt("value-size")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = strings.Split(skip, ",")
	}

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for the cedar storage engine")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Operations: %d\n", benchOps)
	fmt.Printf("Keys:       %d\n", benchKeySpread)
	fmt.Printf("Value size: %d bytes\n", benchValueSize)
	fmt.Println()

	logging.InitLoggers("warn")
	srv := db.NewServer(config.Default())
	d, err := srv.Select(0)
	if err != nil {
		return err
	}

	value := make([]byte, benchValueSize)
	getKey, _ := getKeys("bench")

	fmt.Println("starting tests...")

	results := make(map[string]gometrics.Timer)

	runBench := func(name string, op func(i int) error) {
		timer := gometrics.NewTimer()
		results[name] = timer
		if shouldSkip(name) {
			printResult(name, timer)
			return
		}
		for i := 0; i < benchOps; i++ {
			start := time.Now()
			if err := op(i); err != nil {
				fmt.Printf("(%s) - error: %v\n", name, err)
				break
			}
			timer.UpdateSince(start)
		}
		printResult(name, timer)
	}

	runBench("set", func(i int) error {
		return d.Set(getKey(i), value)
	})

	runBench("get", func(i int) error {
		_, _, err := d.Get(getKey(i))
		return err
	})

	runBench("incr", func(i int) error {
		_, err := d.IncrBy(fmt.Sprintf("%s-incr-%d", benchKeyPrefix, i%benchKeySpread), 1)
		return err
	})

	runBench("lpush", func(i int) error {
		_, err := d.ListPush(fmt.Sprintf("%s-list-%d", benchKeyPrefix, i%benchKeySpread), db.ListHead, value)
		return err
	})

	runBench("sadd", func(i int) error {
		_, err := d.SAdd(fmt.Sprintf("%s-set-%d", benchKeyPrefix, i%benchKeySpread),
			[]byte(strconv.Itoa(i)))
		return err
	})

	runBench("zadd", func(i int) error {
		_, err := d.ZAdd(fmt.Sprintf("%s-zset-%d", benchKeyPrefix, i%benchKeySpread),
			db.ZEntry{Member: []byte(strconv.Itoa(i)), Score: float64(i)})
		return err
	})

	runBench("hset", func(i int) error {
		_, err := d.HSet(fmt.Sprintf("%s-hash-%d", benchKeyPrefix, i%benchKeySpread),
			[]byte(strconv.Itoa(i%512)), value)
		return err
	})

	runBench("del", func(i int) error {
		d.Del(getKey(i))
		return nil
	})

	fmt.Printf("\nmemory in use: %d bytes (peak %d bytes)\n", memory.Used(), memory.Peak())

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeySpread)
	for i := 0; i < benchKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", benchKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%benchKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, timer gometrics.Timer) {
	if timer.Count() == 0 {
		fmt.Printf("%-10sskipped\n", test)
		return
	}

	mean := timer.Mean()
	p99 := timer.Percentile(0.99)
	opsPerSec := 1e9 / mean

	fmt.Printf("%-10s%.0fns/op\tp99 %.0fns\t%.0f ops/sec\n", test, mean, p99, opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]gometrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Count", "MeanNs", "P50Ns", "P99Ns", "OpsPerSec", "Skipped",
		"Ops", "Keys", "ValueSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		skipped := "false"
		var opsPerSec float64
		if timer.Count() == 0 {
			skipped = "true"
		} else {
			opsPerSec = 1e9 / timer.Mean()
		}

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", timer.Percentile(0.5)),
			fmt.Sprintf("%.0f", timer.Percentile(0.99)),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.Itoa(benchOps),
			strconv.Itoa(benchKeySpread),
			strconv.Itoa(benchValueSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
