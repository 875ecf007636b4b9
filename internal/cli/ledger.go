package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/driftq/internal/ledger"
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Dispatch ledger operations",
	Long:  "Commands for verifying the hash-chained dispatch ledger.",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a dispatch ledger",
	Long: "Walks the JSONL ledger and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result := ledger.Verify(args[0])
		if result.Valid {
			fmt.Printf("OK: %d entries verified\n", result.Lines)
			return nil
		}
		fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
		os.Exit(1)
		return nil
	},
}
