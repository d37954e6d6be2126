package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
	"zkpoe/pkg/pipeline"
	"zkpoe/pkg/store"
	"zkpoe/pkg/zkruntime"
)

func setupCmd() *cobra.Command {
	var solidityDir string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Compile the circuits and generate or load their keys",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			spinner, _ := pterm.DefaultSpinner.Start("compiling circuits")
			if err := a.rt.Ensure(cmd.Context()); err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success("circuits ready in " + a.cfg.Artifacts)
			rows := [][]string{{"circuit", "scheme", "constraints", "public inputs", "vk hash"}}
			for _, id := range zkruntime.Circuits {
				c, err := a.rt.Circuit(id)
				if err != nil {
					return err
				}
				rows = append(rows, []string{string(id), a.rt.Scheme().Name(),
					fmt.Sprint(c.Constraints), fmt.Sprint(zkruntime.NbPublicInputs(id)), field.Short(c.VKHash, 8)})
			}
			_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
			if solidityDir == "" {
				return nil
			}
			return exportSolidity(a.rt, solidityDir)
		}),
	}
	cmd.Flags().StringVar(&solidityDir, "export-solidity", "", "write the Solidity verifiers of the on-chain circuits to this directory")
	return cmd
}

func exportSolidity(rt *zkruntime.Runtime, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, id := range []zkruntime.CircuitID{zkruntime.TimestampCircuit, zkruntime.DisclosureCircuit} {
		path := filepath.Join(dir, string(id)+"_verifier.sol")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = rt.ExportSolidity(id, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		pterm.Success.Printfln("exported %s", path)
	}
	return nil
}

type driveOptions struct {
	submit  bool
	backup  string
	receipt string
}

func (o *driveOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.receipt, "receipt", "", "receipt output file (default <datadir>/receipts/<session>.json)")
}

func proveCmd() *cobra.Command {
	opts := driveOptions{}
	var noSubmit bool
	cmd := &cobra.Command{
		Use:   "prove <file>",
		Short: "Commit to a document, prove its existence and anchor the proof on chain",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			opts.submit = !noSubmit
			var registry pipeline.Registry
			if opts.submit {
				chain, err := a.contracts(cmd.Context(), true)
				if err != nil {
					return err
				}
				registry = chain
			}
			s, err := pipeline.New(pipeline.ModeBasic, a.deps(registry))
			if err != nil {
				return err
			}
			if err := selectFile(s, args[0]); err != nil {
				return err
			}
			return drive(cmd.Context(), a, s, opts)
		}),
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&noSubmit, "no-submit", false, "stop once the proof is generated")
	cmd.Flags().StringVar(&opts.backup, "backup", "", "write a salt backup to this file (age encrypted with --passphrase, plain hex otherwise)")
	return cmd
}

func discloseCmd() *cobra.Command {
	opts := driveOptions{submit: true}
	var (
		salt     saltSource
		flags    disclosure.Flags
		values   disclosure.Values
		fileType string
	)
	cmd := &cobra.Command{
		Use:   "disclose <file>",
		Short: "Prove selected properties of an already registered document",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			chain, err := a.contracts(ctx, true)
			if err != nil {
				return err
			}
			s, err := pipeline.New(pipeline.ModeDisclosure, a.deps(chain))
			if err != nil {
				return err
			}
			if err := selectFile(s, args[0]); err != nil {
				return err
			}
			secret, err := salt.resolve(a, s.Snapshot().Digest)
			if err != nil {
				return err
			}
			if err := s.CommitExisting(ctx, secret); err != nil {
				return err
			}
			values.FileType = fileType
			if values.FileType == "" {
				values.FileType = defaultFileType(args[0])
			}
			if err := s.SetDisclosure(flags, values); err != nil {
				return err
			}
			return drive(ctx, a, s, opts)
		}),
	}
	opts.register(cmd)
	salt.register(cmd)
	f := cmd.Flags()
	f.BoolVar(&flags.EmailDomain, "reveal-domain", false, "reveal the domain of --email")
	f.BoolVar(&flags.SizeRange, "reveal-size", false, "reveal that the size is within [--size-min, --size-max]")
	f.BoolVar(&flags.FileType, "reveal-type", false, "reveal the file type")
	f.StringVar(&values.Email, "email", "", "email of the document owner")
	f.Uint64Var(&values.SizeMin, "size-min", 0, "lower bound of the revealed size range, in bytes")
	f.Uint64Var(&values.SizeMax, "size-max", 0, "upper bound of the revealed size range, in bytes")
	f.StringVar(&fileType, "file-type", "", "file type (default: the file extension)")
	return cmd
}

func resumeCmd() *cobra.Command {
	opts := driveOptions{submit: true}
	cmd := &cobra.Command{
		Use:   "resume <session>",
		Short: "Retry the failed or interrupted step of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			st, err := a.sessions()
			if err != nil {
				return err
			}
			snap, err := st.Load(args[0])
			if err != nil {
				return err
			}
			chain, err := a.contracts(cmd.Context(), true)
			if err != nil {
				return err
			}
			s, err := pipeline.Restore(snap, a.deps(chain))
			if err != nil {
				return err
			}
			return drive(cmd.Context(), a, s, opts)
		}),
	}
	opts.register(cmd)
	return cmd
}

func selectFile(s *pipeline.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return s.SelectFile(filepath.Base(path), info.Size(), f)
}

func defaultFileType(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// drive runs the remaining steps of s, saving it after each one, and
// prints the outcome.
func drive(ctx context.Context, a *app, s *pipeline.Session, opts driveOptions) error {
	err := advance(ctx, a, s, opts)
	snap := s.Snapshot()
	printSnapshot(snap, a.network)
	if err != nil || snap.State != pipeline.StateSubmitted {
		return err
	}
	path, err := a.writeReceipt(snap, opts.receipt)
	if err != nil {
		return fmt.Errorf("submitted, but the receipt could not be written: %w", err)
	}
	pterm.Success.Printfln("receipt written to %s", path)
	return nil
}

func advance(ctx context.Context, a *app, s *pipeline.Session, opts driveOptions) error {
	done := make(chan struct{})
	stopped := followSession(s, done)
	defer func() {
		close(done)
		<-stopped
	}()

	retry := s.State() == pipeline.StateError
	for {
		var err error
		state := s.State()
		if retry {
			state = s.Snapshot().FailedStage
			retry = false
			log.Infow("retrying session", "session", s.ID().String(), "stage", string(state))
			if state == pipeline.StateCommitted {
				// a failed commit never left the selected file
				state = pipeline.StateFileSelected
			}
		}
		switch state {
		case pipeline.StateFileSelected:
			if s.Mode() != pipeline.ModeBasic {
				return fmt.Errorf("%w: disclosure session without commitment", pipeline.ErrInvalidTransition)
			}
			if err = s.Commit(ctx); err == nil {
				err = backupSalt(a, s, opts.backup)
			}
		case pipeline.StateCommitted, pipeline.StateProving:
			err = s.Prove(ctx)
		case pipeline.StateProofReady, pipeline.StateSubmitting:
			if !opts.submit {
				return nil
			}
			err = s.Submit(ctx)
		case pipeline.StateSubmitted:
			return nil
		default:
			return fmt.Errorf("%w: session is %s", pipeline.ErrInvalidTransition, s.State())
		}
		a.save(s)
		if err != nil {
			return err
		}
	}
}

// backupSalt writes the salt of a fresh commitment. The session store keeps
// a sealed copy regardless.
func backupSalt(a *app, s *pipeline.Session, path string) error {
	if path == "" {
		pterm.Warning.Println("keep the salt of this commitment: it is required for later disclosures")
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := store.ExportSalt(f, s.Salt(), a.cfg.Passphrase); err != nil {
		return err
	}
	pterm.Success.Printfln("salt backup written to %s", path)
	return nil
}
