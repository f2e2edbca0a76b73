package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/SoraOracle/SoraOracle-sub003/internal/proofchain"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <hash> [payload-file]",
	Short: "Verify a proof chain entry",
	Long:  "With a payload file, recomputes the content hash and compares it to the claim. Without one, fetches the stored payload for the hash and verifies it.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hash := args[0]

		var payload []byte
		if len(args) == 2 {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return eris.Wrapf(err, "read payload file %s", args[1])
			}
			payload = raw
		} else {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close() //nolint:errcheck
			}
			_, _, chain, err := initRegistries(ctx, st)
			if err != nil {
				return err
			}

			raw, ok := chain.Get(ctx, hash)
			if !ok {
				return eris.Errorf("no proof stored for hash %s", hash)
			}
			payload = raw
		}

		if proofchain.Hash(payload) != hash {
			fmt.Println("INVALID: payload does not match hash")
			os.Exit(1)
		}

		fmt.Println("OK")
		if len(args) == 1 {
			os.Stdout.Write(payload)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
