package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"zkpoe/pkg/field"
	"zkpoe/pkg/pipeline"
	"zkpoe/pkg/web3"
)

func printError(err error) {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		pterm.Error.Printfln("%s failed (%s): %v", se.Stage, se.Kind, se.Err)
		if se.Retryable() {
			pterm.Info.Println("the session was saved, run `zkpoe resume` to retry")
		}
		return
	}
	pterm.Error.Println(err)
}

// followSession renders the event stream of s until it closes or done is
// closed. The returned channel is closed once rendering stopped.
func followSession(s *pipeline.Session, done <-chan struct{}) <-chan struct{} {
	events := s.Subscribe()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		var spinner *pterm.SpinnerPrinter
		stop := func(ok bool, msg string) {
			if spinner == nil {
				return
			}
			if ok {
				spinner.Success(msg)
			} else {
				spinner.Fail(msg)
			}
			spinner = nil
		}
		defer stop(false, "interrupted")
		for {
			select {
			case <-done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev.Kind {
				case pipeline.EventState:
					switch ev.State {
					case pipeline.StateProving, pipeline.StateSubmitting:
						spinner, _ = pterm.DefaultSpinner.WithRemoveWhenDone(false).Start(string(ev.State))
					case pipeline.StateProofReady:
						stop(true, "proof ready")
					case pipeline.StateSubmitted:
						stop(true, "submitted")
					case pipeline.StateCommitted, pipeline.StateFileSelected:
						pterm.Success.Println(ev.State)
					}
				case pipeline.EventProgress:
					if spinner != nil {
						spinner.UpdateText(string(ev.Stage))
					}
				case pipeline.EventError:
					stop(false, ev.Err.Error())
				}
			}
		}
	}()
	return stopped
}

func printSnapshot(snap pipeline.Snapshot, net web3.Network) {
	rows := [][]string{
		{"session", snap.ID},
		{"mode", string(snap.Mode)},
		{"state", string(snap.State)},
	}
	if snap.FileName != "" {
		rows = append(rows, []string{"file", fmt.Sprintf("%s (%s)", snap.FileName, humanize.IBytes(snap.FileSize))})
		rows = append(rows, []string{"sha256", snap.Digest.Hex()})
	}
	if !snap.Commitment.IsZero() {
		rows = append(rows, []string{"commitment", snap.Commitment.Hex()})
	}
	if snap.AnchoredAt != 0 {
		rows = append(rows, []string{"timestamp", formatTimestamp(snap.AnchoredAt)})
	}
	if a := snap.Artifact; a != nil {
		rows = append(rows, []string{"proof", fmt.Sprintf("%s/%s, %s, %s constraints, %s",
			a.Circuit, a.Scheme, humanize.Bytes(uint64(len(a.Proof))),
			humanize.Comma(int64(a.Constraints)), a.ProvingTime.Round(time.Millisecond))})
	}
	if sub := snap.Submission; sub != nil {
		rows = append(rows, []string{"transaction", sub.TxHash.Hex()})
		rows = append(rows, []string{"block", humanize.Comma(int64(sub.BlockNumber))})
		rows = append(rows, []string{"gas used", humanize.Comma(int64(sub.GasUsed))})
		if u := net.TxURL(sub.TxHash); u != "" {
			rows = append(rows, []string{"explorer", u})
		}
	}
	if snap.LastError != "" {
		rows = append(rows, []string{"last error", fmt.Sprintf("%s: %s", snap.FailedStage, snap.LastError)})
	}
	_ = pterm.DefaultTable.WithData(rows).Render()
}

func printExistence(c field.Element, e web3.Existence, net web3.Network) {
	if !e.Exists {
		pterm.Warning.Printfln("commitment %s is not registered on %s", c.Hex(), net.Name)
		return
	}
	pterm.Success.Printfln("commitment %s exists", c.Hex())
	_ = pterm.DefaultTable.WithData([][]string{
		{"submitter", e.Submitter.Hex()},
		{"timestamp", formatTimestamp(e.Timestamp)},
		{"block", humanize.Comma(int64(e.BlockNumber))},
		{"explorer", net.AddressURL(e.Submitter)},
	}).Render()
}

func printDisclosures(c field.Element, records []*web3.DisclosureRecord) {
	if len(records) == 0 {
		pterm.Info.Printfln("no disclosures for %s", c.Hex())
		return
	}
	rows := [][]string{{"#", "email domain hash", "size range", "file type", "timestamp"}}
	for _, r := range records {
		row := []string{fmt.Sprint(r.Index), "hidden", "hidden", "hidden", formatTimestamp(r.Timestamp)}
		if r.Flags.EmailDomain {
			row[1] = field.Short(r.DomainHash.Hex(), 10)
		}
		if r.Flags.SizeRange {
			row[2] = fmt.Sprintf("%s - %s", humanize.IBytes(r.SizeMin), humanize.IBytes(r.SizeMax))
		}
		if r.Flags.FileType {
			row[3] = r.FileType
		}
		rows = append(rows, row)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-").WithData(rows).Render()
}

func formatTimestamp(ts uint64) string {
	t := time.Unix(int64(ts), 0)
	return fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), humanize.Time(t))
}
