package printer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/veritag-systems/rfid-label-agent/label"
)

// Progress describes one finished batch item for the caller's progress
// callback.
type Progress struct {
	Index   int // 1-based position in the batch
	Total   int
	AssetID string
	Outcome Outcome
}

// BatchSummary counts how a batch ended. Batches always run to completion;
// a single item's failure never aborts the rest.
type BatchSummary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Coordinator orchestrates dialect resolution, encoding and delivery for
// single and batch print operations. Callers serialize: at most one send may
// be in flight per target at a time.
type Coordinator struct {
	network   Sender
	usb       Sender
	prober    Prober
	backupDir string
	log       zerolog.Logger
}

// NewCoordinator wires the two transports and the dialect prober together.
// Every rendered payload is also written under backupDir so operators can
// retry delivery by hand.
func NewCoordinator(network, usb Sender, prober Prober, backupDir string, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		network:   network,
		usb:       usb,
		prober:    prober,
		backupDir: backupDir,
		log:       log,
	}
}

// resolveLanguage maps a selection onto a concrete dialect. Auto probes the
// printer only over the network; there is no reliable probe over USB, so
// that channel defaults to ZPL. An Unknown probe result also resolves to
// ZPL: sending ZPL to an unreachable or silent printer is the least harmful
// assumption, and the caller sees the transport failure either way.
func (c *Coordinator) resolveLanguage(t Target, sel Selection) label.Language {
	switch sel {
	case SelectZPL:
		return label.ZPL
	case SelectIPL:
		return label.IPL
	}
	if t.Mode == ModeNetwork && t.Host != "" {
		guess := c.prober.Detect(t.Host, t.port())
		c.log.Debug().Stringer("guess", guess).Str("host", t.Host).Msg("probed printer dialect")
		if guess == GuessIPL {
			return label.IPL
		}
	}
	return label.ZPL
}

// PrintLabel renders one label in the resolved dialect and delivers it over
// the configured transport. Expected failures come back as
// Outcome{Success: false}; a backup copy of the rendered bytes is written
// even when the send fails.
func (c *Coordinator) PrintLabel(d label.Description, t Target, sel Selection) Outcome {
	if err := c.validate(d, t); err != nil {
		return Outcome{Success: false, Message: err.Error(), Language: label.ZPL}
	}
	lang := c.resolveLanguage(t, sel)
	return c.printResolved(d, t, lang)
}

func (c *Coordinator) validate(d label.Description, t Target) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return t.Validate()
}

func (c *Coordinator) printResolved(d label.Description, t Target, lang label.Language) Outcome {
	data, err := label.Render(lang, d)
	if err != nil {
		return Outcome{Success: false, Message: err.Error(), Language: lang}
	}

	sendErr := c.sender(t).Send(t, data)
	c.writeBackup(d.AssetID, lang, data)

	if sendErr != nil {
		c.log.Warn().Str("asset", d.AssetID).Stringer("language", lang).
			Err(sendErr).Msg("label delivery failed")
		return Outcome{Success: false, Message: sendErr.Error(), Language: lang}
	}
	c.log.Info().Str("asset", d.AssetID).Stringer("language", lang).
		Stringer("mode", t.Mode).Msg("label printed")
	return Outcome{Success: true, Message: "OK", Language: lang}
}

func (c *Coordinator) sender(t Target) Sender {
	switch t.Mode {
	case ModeNetwork:
		return c.network
	case ModeUSB:
		return c.usb
	}
	panic(fmt.Sprintf("printer: no sender for mode %d", int(t.Mode)))
}

// writeBackup persists the exact bytes sent (or attempted) as
// <asset_id>.<zpl|ipl>. Backup trouble is logged but never changes the print
// outcome.
func (c *Coordinator) writeBackup(assetID string, lang label.Language, data []byte) {
	if c.backupDir == "" {
		return
	}
	if err := os.MkdirAll(c.backupDir, 0o755); err != nil {
		c.log.Warn().Err(err).Msg("cannot create backup directory")
		return
	}
	path := filepath.Join(c.backupDir, fmt.Sprintf("%s.%s", assetID, lang.Ext()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("cannot write label backup")
		return
	}
	c.log.Debug().Str("path", path).Msg("label backup saved")
}

// BatchPrint prints the descriptions in caller-supplied order, one at a
// time. With SelectAuto on a network target the dialect is probed once for
// the whole batch and reused; if the printer is swapped mid-batch the
// remaining items will be mis-encoded (accepted limitation). Items with an
// empty asset id are skipped without any encode or send. progress, when
// non-nil, is invoked after each attempted item. There is no mid-batch
// cancellation; the batch runs over its whole input list.
func (c *Coordinator) BatchPrint(items []label.Description, t Target, sel Selection, progress func(Progress)) BatchSummary {
	var sum BatchSummary

	if err := t.Validate(); err != nil {
		// Every printable item fails the same way; still honor the
		// skip counting and progress contract.
		for i, d := range items {
			if d.Validate() != nil {
				sum.Skipped++
				continue
			}
			sum.Failed++
			if progress != nil {
				progress(Progress{
					Index:   i + 1,
					Total:   len(items),
					AssetID: d.AssetID,
					Outcome: Outcome{Success: false, Message: err.Error(), Language: label.ZPL},
				})
			}
		}
		return sum
	}

	// Resolve once for the whole batch to avoid probing per item.
	lang := c.resolveLanguage(t, sel)
	c.log.Info().Int("items", len(items)).Stringer("language", lang).Msg("batch print started")

	for i, d := range items {
		if d.Validate() != nil {
			sum.Skipped++
			continue
		}
		outcome := c.printResolved(d, t, lang)
		if outcome.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		if progress != nil {
			progress(Progress{Index: i + 1, Total: len(items), AssetID: d.AssetID, Outcome: outcome})
		}
	}

	c.log.Info().Int("succeeded", sum.Succeeded).Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).Msg("batch print complete")
	return sum
}

// PrintTestLabel pushes a fixed smoke-test label through the normal print
// path so operators can check wiring from settings.
func (c *Coordinator) PrintTestLabel(t Target, sel Selection) Outcome {
	d := label.Description{
		AssetID:  "TEST-PRINT",
		Name:     "Printer Test Label",
		Category: "Diagnostics",
	}
	return c.PrintLabel(d, t, sel)
}
