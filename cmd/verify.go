package cmd

import (
	"fmt"

	"dataserver/db"
	"github.com/spf13/cobra"
)

var verifyWorkers = 0

func init() {
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check that pages served to readers match the file",
		Long: `The verify command hashes every page as served by the buffer pool (or the mapping when the
pool is turned off) and compares the result with a hash of the file read directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := db.Open(args[0], cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			served, err := d.Digest(verifyWorkers)
			if err != nil {
				return err
			}
			direct, err := db.FileDigest(args[0], cfg.PageSize)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "served %s\n", served)
			fmt.Fprintf(w, "file   %s\n", direct)
			if served != direct {
				return fmt.Errorf("%s: pages served differ from the file", args[0])
			}
			fmt.Fprintln(w, "ok")
			return nil
		},
	}
	cmd.Flags().IntVar(&verifyWorkers, "workers", verifyWorkers, "number of concurrent readers, 0 for one per CPU")
	rootCmd.AddCommand(cmd)
}
