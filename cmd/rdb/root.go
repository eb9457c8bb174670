package rdb

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cedarkv/cedar/cmd/util"
	"github.com/cedarkv/cedar/lib/rdb"
)

var (
	// RDBCommands represents the snapshot inspection command group
	RDBCommands = &cobra.Command{
		Use:   "rdb",
		Short: "Inspect snapshot files",
	}

	checkCmd = &cobra.Command{
		Use:   "check <file>",
		Short: "Verify a snapshot file and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}

	dumpCmd = &cobra.Command{
		Use:   "dump <file>",
		Short: "Print every key of a snapshot with its type and deadline",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump,
	}
)

func init() {
	RDBCommands.AddCommand(checkCmd)
	RDBCommands.AddCommand(dumpCmd)

	key := "no-checksum"
	checkCmd.Flags().Bool(key, false, util.WrapString("Skip the checksum verification, only the structure is checked"))
}

// loadFile parses the snapshot at path.
func loadFile(path string, verifyChecksum bool) (*rdb.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rdb.Load(f, verifyChecksum)
}

func runCheck(cmd *cobra.Command, args []string) error {
	noChecksum, _ := cmd.Flags().GetBool("no-checksum")

	snap, err := loadFile(args[0], !noChecksum)
	if err != nil {
		return fmt.Errorf("snapshot is invalid: %w", err)
	}

	keys, expires := 0, 0
	for _, dump := range snap.DBs {
		keys += len(dump.Entries)
		for _, e := range dump.Entries {
			if e.ExpireAt >= 0 {
				expires++
			}
		}
	}
	fmt.Printf("snapshot is valid\n")
	fmt.Printf("  databases : %d\n", len(snap.DBs))
	fmt.Printf("  keys      : %d\n", keys)
	fmt.Printf("  deadlines : %d\n", expires)
	return nil
}

func runDump(_ *cobra.Command, args []string) error {
	snap, err := loadFile(args[0], true)
	if err != nil {
		return err
	}

	for _, dump := range snap.DBs {
		fmt.Printf("db %d (%d keys)\n", dump.Index, len(dump.Entries))
		for _, e := range dump.Entries {
			deadline := "-"
			if e.ExpireAt >= 0 {
				deadline = time.UnixMilli(e.ExpireAt).Format(time.RFC3339)
			}
			fmt.Printf("  %-8s %-10s %-25s %s\n",
				e.Value.Type, e.Value.Encoding, deadline, e.Key)
		}
	}
	return nil
}
