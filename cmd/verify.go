package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/intent"
	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	var expectedSigner string

	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify a signed intent produced by sign",
		Long: `Read a signed intent as printed by sign, from a file or stdin, recompute its
canonical encoding and check the signature against the embedded signer.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runVerify(in, expectedSigner, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&expectedSigner, "signer", "", "fail unless the intent was signed by this address")
	return cmd
}

func runVerify(in io.Reader, expectedSigner string, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, "failed to read signed intent")
	}

	var signed intent.SignedIntent
	if err := json.Unmarshal(data, &signed); err != nil {
		return err
	}
	if err := signed.Verify(); err != nil {
		return err
	}

	if expectedSigner != "" {
		if !common.IsHexAddress(expectedSigner) {
			return errors.Errorf("invalid --signer address %s", expectedSigner)
		}
		if common.HexToAddress(expectedSigner) != signed.Signer() {
			return errors.Wrapf(intent.ErrSignerMismatch, "signed by %s", signed.Signer().Hex())
		}
	}

	i := signed.Intent()
	_, err = fmt.Fprintf(out, "valid signature by %s\nsession %s nonce %d\ndigest %s\n",
		signed.Signer().Hex(), i.SessionID(), i.Nonce(), signed.Digest().Hex())
	return err
}
