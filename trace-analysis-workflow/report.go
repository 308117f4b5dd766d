// =============================================================================
// report.go - Phase 2: Report Generation
// =============================================================================
//
// This file is the thin driver for the report phase. The heavy lifting
// lives in pkg/report; this wrapper owns the output file, loads the run
// summary from the meta store, and times the phase.
//
// =============================================================================

package main

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/report"
)

// RunReport generates the report from a fully ingested record store.
func RunReport(config *Config, store interfaces.RecordStore, meta interfaces.MetaStore,
	logger interfaces.Logger) error {
	log := logger

	summary, found, err := meta.GetSummary()
	if err != nil {
		return errors.Wrap(err, "loading run summary")
	}
	if !found {
		return errors.New("no run summary in meta store; ingest did not complete")
	}

	out := os.Stdout
	if config.ReportPath != "-" {
		f, err := os.Create(config.ReportPath)
		if err != nil {
			return errors.Wrapf(err, "creating report file %s", config.ReportPath)
		}
		defer f.Close()
		out = f
	}

	start := time.Now()
	reporter := report.NewReporter(report.Config{
		Store:       store,
		Summary:     summary,
		TracePath:   config.TracePath,
		Out:         out,
		TmpDir:      config.EtlTmpPath,
		LineNumbers: config.LineNumbers,
		IdleEvents:  config.IdleEvents(),
		Logger:      log,
	})
	defer reporter.Close()

	if err := reporter.Run(); err != nil {
		return errors.Wrap(err, "generating report")
	}

	if config.ReportPath != "-" {
		if fi, err := os.Stat(config.ReportPath); err == nil {
			log.Info("Report: %s (%s) in %s",
				config.ReportPath,
				helpers.FormatBytes(fi.Size()),
				helpers.FormatDuration(time.Since(start)))
		}
	} else {
		log.Info("Report written to stdout in %s", helpers.FormatDuration(time.Since(start)))
	}
	return nil
}
