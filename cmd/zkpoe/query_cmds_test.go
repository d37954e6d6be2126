package main

import (
	"context"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"zkpoe/pkg/field"
)

// Short commitments are rejected before any connection is opened.
func TestCommitmentArgumentsAreValidated(t *testing.T) {
	c, err := loadConfig(newFlagSet(t, "--datadir", t.TempDir(), "--web3.rpc", "http://127.0.0.1:1"))
	require.NoError(t, err)
	prev := cfg
	cfg = c
	defer func() { cfg = prev }()

	cases := map[string]struct {
		cmd  func() *cobra.Command
		args []string
	}{
		"verify":      {verifyCmd, []string{"--commitment", "0x1234"}},
		"disclosures": {disclosuresCmd, []string{"0x1234"}},
		"salt export": {saltCmd, []string{"export", "0x1234"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := tc.cmd()
			cmd.SetArgs(tc.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			err := cmd.ExecuteContext(context.Background())
			require.ErrorIs(t, err, field.ErrMalformedHex)
		})
	}
}
