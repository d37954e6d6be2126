package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"zkpoe/pkg/field"
	"zkpoe/pkg/pipeline"
	"zkpoe/pkg/receipt"
	"zkpoe/pkg/store"
)

// saltSource is where a command gets the salt of an existing commitment.
type saltSource struct {
	hex  string
	file string
}

func (s *saltSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.hex, "salt", "", "salt of the commitment, hex")
	cmd.Flags().StringVar(&s.file, "salt-file", "", "salt backup file (see --passphrase)")
}

// resolve returns the explicit salt, or the salt of the newest stored
// session that committed to the same document.
func (s *saltSource) resolve(a *app, digest field.Digest) (field.Bytes31, error) {
	switch {
	case s.hex != "":
		return field.ParseBytes31(s.hex)
	case s.file != "":
		f, err := os.Open(s.file)
		if err != nil {
			return field.Bytes31{}, err
		}
		defer f.Close()
		return store.ImportSalt(f, a.cfg.Passphrase)
	}
	st, err := a.sessions()
	if err != nil {
		return field.Bytes31{}, err
	}
	snaps, err := st.List()
	if err != nil {
		return field.Bytes31{}, err
	}
	for _, snap := range snaps {
		if snap.Mode == pipeline.ModeBasic && snap.Digest == digest && !snap.Secrets.Salt.IsZero() {
			return snap.Secrets.Salt, nil
		}
	}
	return field.Bytes31{}, errors.New("no stored session for this document, use --salt or --salt-file")
}

func verifyCmd() *cobra.Command {
	var (
		salt       saltSource
		commitment string
	)
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check that a document, or a commitment, is registered on chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			var c field.Element
			switch {
			case commitment != "" && len(args) == 0:
				var err error
				if c, err = field.ParseCommitment(commitment); err != nil {
					return err
				}
			case commitment == "" && len(args) == 1:
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				digest, err := field.DigestReader(f)
				f.Close()
				if err != nil {
					return err
				}
				secret, err := salt.resolve(a, digest)
				if err != nil {
					return err
				}
				if c, err = a.engine.ComputeCommitment(ctx, field.ToFieldElement(digest), secret); err != nil {
					return err
				}
			default:
				return errors.New("pass either a file or --commitment")
			}
			chain, err := a.contracts(ctx, false)
			if err != nil {
				return err
			}
			e, err := chain.VerifyExistence(ctx, c)
			if err != nil {
				return err
			}
			printExistence(c, e, a.network)
			return nil
		}),
	}
	salt.register(cmd)
	cmd.Flags().StringVar(&commitment, "commitment", "", "commitment hex (0x followed by 64 hex chars)")
	return cmd
}

func disclosuresCmd() *cobra.Command {
	var flagsOnly bool
	cmd := &cobra.Command{
		Use:   "disclosures <commitment>",
		Short: "List the disclosures registered for a commitment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			c, err := field.ParseCommitment(args[0])
			if err != nil {
				return err
			}
			chain, err := a.contracts(cmd.Context(), false)
			if err != nil {
				return err
			}
			if !flagsOnly {
				records, err := chain.Disclosures(cmd.Context(), c)
				if err != nil {
					return err
				}
				printDisclosures(c, records)
				return nil
			}
			n, err := chain.DisclosureCount(cmd.Context(), c)
			if err != nil {
				return err
			}
			rows := [][]string{{"#", "email domain", "size range", "file type"}}
			for i := uint64(0); i < n; i++ {
				f, err := chain.DisclosureFlags(cmd.Context(), c, i)
				if err != nil {
					return fmt.Errorf("disclosure %d: %w", i, err)
				}
				rows = append(rows, []string{fmt.Sprint(i), revealed(f.EmailDomain), revealed(f.SizeRange), revealed(f.FileType)})
			}
			return pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-").WithData(rows).Render()
		}),
	}
	cmd.Flags().BoolVar(&flagsOnly, "flags", false, "only show what each disclosure reveals")
	return cmd
}

func revealed(b bool) string {
	if b {
		return "revealed"
	}
	return "hidden"
}

func commitmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commitments [address]",
		Short: "List the commitments submitted by an account, the configured one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var user common.Address
			if len(args) == 1 {
				if !common.IsHexAddress(args[0]) {
					return fmt.Errorf("invalid address %q", args[0])
				}
				user = common.HexToAddress(args[0])
			}
			chain, err := a.contracts(cmd.Context(), len(args) == 0)
			if err != nil {
				return err
			}
			list, err := chain.UserCommitments(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				pterm.Info.Println("no commitments")
				return nil
			}
			items := make([]pterm.BulletListItem, len(list))
			for i, c := range list {
				items[i] = pterm.BulletListItem{Text: c.Hex()}
			}
			return pterm.DefaultBulletList.WithItems(items).Render()
		}),
	}
}

func sessionsCmd() *cobra.Command {
	var remove string
	cmd := &cobra.Command{
		Use:   "sessions [id]",
		Short: "List stored sessions, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			st, err := a.sessions()
			if err != nil {
				return err
			}
			if remove != "" {
				if err := st.Delete(remove); err != nil {
					return err
				}
				pterm.Success.Printfln("session %s deleted", remove)
				return nil
			}
			if len(args) == 1 {
				snap, err := st.Load(args[0])
				if err != nil {
					return err
				}
				printSnapshot(snap, a.network)
				return nil
			}
			snaps, err := st.List()
			if err != nil {
				return err
			}
			rows := [][]string{{"session", "mode", "state", "file", "commitment", "updated"}}
			for _, s := range snaps {
				rows = append(rows, []string{s.ID, string(s.Mode), string(s.State), s.FileName,
					field.Short(s.Commitment.Hex(), 6), humanize.Time(s.UpdatedAt)})
			}
			return pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-").WithData(rows).Render()
		}),
	}
	cmd.Flags().StringVar(&remove, "delete", "", "delete the session with this id")
	return cmd
}

func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Work with submission receipts",
	}
	var onChain bool
	verify := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check the signature of a receipt and, optionally, its registration",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			r, err := receipt.Read(f)
			f.Close()
			if err != nil {
				return err
			}
			if err := r.Verify(); err != nil {
				return err
			}
			pterm.Success.Printfln("receipt signed by %s", r.PublicKey)
			if !onChain {
				return nil
			}
			if r.Body.ChainID != a.network.ChainID {
				return fmt.Errorf("receipt is for chain %d, configured network is %d", r.Body.ChainID, a.network.ChainID)
			}
			c, err := r.Body.CommitmentElement()
			if err != nil {
				return err
			}
			chain, err := a.contracts(cmd.Context(), false)
			if err != nil {
				return err
			}
			e, err := chain.VerifyExistence(cmd.Context(), c)
			if err != nil {
				return err
			}
			if !e.Exists {
				return fmt.Errorf("%w: commitment is not registered", receipt.ErrInvalidReceipt)
			}
			if idx := r.Body.DisclosureIndex; idx != nil {
				n, err := chain.DisclosureCount(cmd.Context(), c)
				if err != nil {
					return err
				}
				if *idx >= n {
					return fmt.Errorf("%w: disclosure %d is not registered", receipt.ErrInvalidReceipt, *idx)
				}
			}
			printExistence(c, e, a.network)
			return nil
		}),
	}
	verify.Flags().BoolVar(&onChain, "chain", false, "also check the registry")
	cmd.AddCommand(verify)
	return cmd
}

func saltCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salt",
		Short: "Back up and restore commitment salts",
	}
	var out string
	export := &cobra.Command{
		Use:   "export <session|commitment>",
		Short: "Write the salt of a stored session to a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			st, err := a.sessions()
			if err != nil {
				return err
			}
			snap, err := st.Load(args[0])
			if errors.Is(err, store.ErrNotFound) {
				c, perr := field.ParseCommitment(args[0])
				if perr != nil {
					return fmt.Errorf("%w, and not a commitment: %w", err, perr)
				}
				snap, err = st.FindByCommitment(c)
			}
			if err != nil {
				return err
			}
			if snap.Secrets.Salt.IsZero() {
				return fmt.Errorf("session %s has no salt", snap.ID)
			}
			w := os.Stdout
			if out != "" {
				f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return store.ExportSalt(w, snap.Secrets.Salt, a.cfg.Passphrase)
		}),
	}
	export.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Read a salt backup file and print the salt",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ *cobra.Command, args []string, a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			salt, err := store.ImportSalt(f, a.cfg.Passphrase)
			if err != nil {
				return err
			}
			fmt.Println(salt.Hex())
			return nil
		}),
	}
	cmd.AddCommand(export, imp)
	return cmd
}
