package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"dataserver/buffer"
	"dataserver/db"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	scanWorkers = 0
	scanPasses  = 1
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Read every page and report buffer pool statistics",
		Long: `The scan command reads every page of a database file with several concurrent readers,
one or more times, and prints the state of the buffer pool afterwards.

Example:
  dataserver scan data.mdf --workers 8 --passes 3 --max-memory 256MiB`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().IntVar(&scanWorkers, "workers", scanWorkers, "number of concurrent readers, 0 for one per CPU")
	cmd.Flags().IntVar(&scanPasses, "passes", scanPasses, "number of times every page is read")
	rootCmd.AddCommand(cmd)
}

func runScan(w io.Writer, path string) error {
	d, err := db.Open(path, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	var bytes uint64
	for pass := 0; pass < scanPasses; pass++ {
		err := d.Scan(scanWorkers, func(page int, data []byte) error {
			return nil
		})
		if err != nil {
			return fmt.Errorf("pass %d: %w", pass+1, err)
		}
		bytes += uint64(d.Size())
	}
	elapsed := time.Since(start)

	fmt.Fprintf(w, "read %s in %s (%s/s)\n", humanize.IBytes(bytes), elapsed.Round(time.Millisecond),
		humanize.IBytes(uint64(float64(bytes)/elapsed.Seconds())))
	if d.Pool() != nil {
		printStats(w, d.Stats())
	}
	return nil
}

func printStats(w io.Writer, s buffer.Stats) {
	tw := newTable(w, "stat", "value")
	tw.Append([]string{"locked blocks", fmt.Sprint(s.Locked)})
	tw.Append([]string{"unlocked blocks", fmt.Sprint(s.Unlocked)})
	tw.Append([]string{"free blocks", fmt.Sprint(s.Free)})
	tw.Append([]string{"fixed blocks", fmt.Sprint(s.Fixed)})
	tw.Append([]string{"used", humanize.IBytes(uint64(s.UsedSize))})
	tw.Append([]string{"unused", humanize.IBytes(uint64(s.UnusedSize))})
	tw.Append([]string{"committed", humanize.IBytes(uint64(s.CommittedSize))})
	tw.Append([]string{"arena break", fmt.Sprint(s.ArenaBreak)})
	tw.Append([]string{"mixed arenas", fmt.Sprint(s.MixedArenas)})
	tw.Append([]string{"free arenas", fmt.Sprint(s.FreeArenas)})

	keys := make([]string, 0, len(s.Counters))
	for k := range s.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tw.Append([]string{k, humanize.Comma(int64(s.Counters[k]))})
	}
	tw.Render()
}
