package cmd

import (
	"fmt"
	"io"

	"dataserver/db"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "info <file>",
		Short: "Show the layout of a database file and the pool settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := db.Open(args[0], cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			printInfo(cmd.OutOrStdout(), args[0], d)
			return nil
		},
	})
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader(header)
	return tw
}

func printInfo(w io.Writer, path string, d *db.DB) {
	geo := cfg.Geometry()
	blocks := (d.PageCount() + geo.BlockPages - 1) / geo.BlockPages

	tw := newTable(w, "property", "value")
	tw.Append([]string{"file", path})
	tw.Append([]string{"size", humanize.IBytes(uint64(d.Size()))})
	tw.Append([]string{"page size", humanize.IBytes(uint64(geo.PageSize))})
	tw.Append([]string{"pages", humanize.Comma(int64(d.PageCount()))})
	tw.Append([]string{"block size", humanize.IBytes(uint64(geo.BlockSize()))})
	tw.Append([]string{"blocks", humanize.Comma(int64(blocks))})
	tw.Append([]string{"arena size", humanize.IBytes(uint64(geo.ArenaSize()))})
	tw.Append([]string{"buffer pool", fmt.Sprint(cfg.UseBufferPool)})
	if cfg.UseBufferPool {
		tw.Append([]string{"min memory", humanize.IBytes(uint64(cfg.MinMemory))})
		tw.Append([]string{"max memory", memoryLimit(cfg.MaxMemory)})
		tw.Append([]string{"maintenance period", cfg.MaintenancePeriod.String()})
		tw.Append([]string{"defrag period", cfg.DefragPeriod.String()})
		tw.Append([]string{"max threads", fmt.Sprint(cfg.MaxThreads)})
	}
	tw.Render()
}

func memoryLimit(n int64) string {
	if n == 0 {
		return "file size"
	}
	return humanize.IBytes(uint64(n))
}
