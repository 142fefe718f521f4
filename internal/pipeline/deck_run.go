// Package pipeline runs deck generation end to end: flow initialization,
// client discovery, per-client section generation and assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"icdeck/internal/flow"
	"icdeck/internal/generator"
	"icdeck/internal/logging"
	"icdeck/internal/report"
	"icdeck/internal/sections"
	"icdeck/internal/storage"
)

type Registry interface {
	Initialize(ctx context.Context, secs []sections.Section) error
	Outcomes() []flow.Outcome
}

type ClientSource interface {
	Clients(ctx context.Context) ([]string, error)
}

type SectionGenerator interface {
	Generate(ctx context.Context, sectionID, clientID string) (generator.SectionResult, error)
}

type Assembler interface {
	Assemble(ctx context.Context, clientID string, secs []report.Section) (report.Artifact, error)
}

// DeckRun wires the collaborators of one generation run. Clients and Ledger
// are optional.
type DeckRun struct {
	Catalog   *sections.Catalog
	Registry  Registry
	Generator SectionGenerator
	Assembler Assembler
	Clients   ClientSource
	Ledger    storage.Ledger
	ReportDir string
	Logger    *zap.Logger
}

// RunResult is what a run produced.
type RunResult struct {
	RunID      string
	Decks      []report.Artifact
	Failed     map[string]error
	ReportPath string
	Report     *RunReport
}

// Run initializes every section flow, then generates and assembles one deck
// per client. With no explicit clients they are discovered. A failure inside
// one client aborts that client only; the joined client errors are returned.
// Failing to initialize flows or to discover clients aborts the run.
func (d *DeckRun) Run(ctx context.Context, clients []string) (res *RunResult, retErr error) {
	logger := logging.OrNop(d.Logger)
	runID := uuid.NewString()
	rep := NewRunReport(runID)
	res = &RunResult{RunID: runID, Failed: map[string]error{}, Report: rep}

	if d.ReportDir != "" {
		res.ReportPath = filepath.Join(d.ReportDir, runID, "run_report.json")
		defer func() {
			if retErr != nil {
				rep.AddSignal("run_failed", "run", "critical", retErr.Error(), 1)
			}
			if err := rep.Save(res.ReportPath); err != nil {
				logger.Warn("failed to write run report", zap.String("path", res.ReportPath), zap.Error(err))
			}
		}()
	}

	stage := rep.BeginStage("init_flows")
	if err := d.Registry.Initialize(ctx, d.Catalog.All()); err != nil {
		rep.EndStage(stage, "error", nil, nil, err)
		return res, fmt.Errorf("failed to initialize flows: %w", err)
	}
	counters := map[string]float64{}
	for _, o := range d.Registry.Outcomes() {
		counters["flows_"+o.Action]++
	}
	rep.EndStage(stage, "ok", counters, nil, nil)

	stage = rep.BeginStage("discover_clients")
	if len(clients) == 0 {
		if d.Clients == nil {
			err := errors.New("no clients given and no client source configured")
			rep.EndStage(stage, "error", nil, nil, err)
			return res, err
		}
		found, err := d.Clients.Clients(ctx)
		if err != nil {
			rep.EndStage(stage, "error", nil, nil, err)
			return res, fmt.Errorf("failed to discover clients: %w", err)
		}
		clients = found
	}
	rep.EndStage(stage, "ok", map[string]float64{"clients": float64(len(clients))}, nil, nil)
	if len(clients) == 0 {
		rep.AddSignal("no_clients", "discover_clients", "warning", "No clients to generate decks for.", 0)
		logger.Warn("no clients to generate decks for")
		return res, nil
	}

	var errs []error
	for _, clientID := range clients {
		art, err := d.runClient(ctx, rep, runID, clientID, logger)
		if err != nil {
			res.Failed[clientID] = err
			errs = append(errs, fmt.Errorf("client %s: %w", clientID, err))
			rep.AddSignal("client_failed", "client:"+clientID, "critical", err.Error(), 1)
			logger.Error("deck generation failed", zap.String("client", clientID), zap.Error(err))
			continue
		}
		res.Decks = append(res.Decks, art)
	}
	return res, errors.Join(errs...)
}

func (d *DeckRun) runClient(ctx context.Context, rep *RunReport, runID, clientID string, logger *zap.Logger) (report.Artifact, error) {
	stageName := "client:" + clientID
	stage := rep.BeginStage(stageName)

	ids := d.Catalog.IDs()
	parts := make([]report.Section, 0, len(ids))
	records := make([]storage.SectionRecord, 0, len(ids))
	for _, id := range ids {
		started := time.Now()
		res, err := d.Generator.Generate(ctx, id, clientID)
		if err != nil {
			sec, _ := d.Catalog.Get(id)
			rep.AddSectionMetric(SectionMetric{
				ClientID:   clientID,
				SectionID:  id,
				Title:      sec.Title,
				FlowName:   sec.FlowName,
				DurationMS: time.Since(started).Milliseconds(),
				Status:     "error",
				Error:      err.Error(),
			})
			rep.EndStage(stage, "error", nil, nil, err)
			return report.Artifact{}, err
		}

		m := sectionMetric(res)
		rep.AddSectionMetric(m)
		if m.NoEvidence {
			rep.AddSignal("no_evidence", stageName, "warning",
				fmt.Sprintf("Section %s was generated without evidence.", id), 0)
		}
		if m.FailedQueries > 0 {
			rep.AddSignal("failed_queries", stageName, "info",
				fmt.Sprintf("Section %s skipped %d failed queries.", id, m.FailedQueries), float64(m.FailedQueries))
		}
		parts = append(parts, report.Section{Title: res.Title, Text: res.Text})
		records = append(records, storage.SectionRecord{
			SectionID:     res.SectionID,
			FlowName:      res.FlowName,
			EvidenceItems: m.EvidenceItems,
			QueryFailures: m.FailedQueries,
			Chars:         m.OutputBytes,
			Status:        m.Status,
		})
	}

	art, err := d.Assembler.Assemble(ctx, clientID, parts)
	if err != nil {
		rep.EndStage(stage, "error", nil, nil, err)
		return report.Artifact{}, fmt.Errorf("failed to assemble deck: %w", err)
	}
	rep.AddDeck(DeckMetric{ClientID: clientID, Key: art.Key, Location: art.Location, Bytes: art.Bytes})

	if d.Ledger != nil {
		err := d.Ledger.RecordArtifact(ctx, storage.Artifact{
			RunID:       runID,
			ClientID:    clientID,
			Key:         art.Key,
			GeneratedAt: art.GeneratedAt,
			Sections:    records,
		})
		if err != nil {
			rep.AddSignal("ledger_write_failed", stageName, "warning", err.Error(), 0)
			logger.Warn("failed to record deck in ledger", zap.String("client", clientID), zap.Error(err))
		}
	}

	rep.EndStage(stage, "ok", map[string]float64{
		"sections":   float64(len(parts)),
		"deck_bytes": float64(art.Bytes),
	}, []string{art.Location}, nil)
	return art, nil
}

func sectionMetric(res generator.SectionResult) SectionMetric {
	return SectionMetric{
		ClientID:      res.ClientID,
		SectionID:     res.SectionID,
		Title:         res.Title,
		FlowName:      res.FlowName,
		Queries:       res.Bundle.Queries,
		FailedQueries: len(res.Bundle.Failures),
		SearchHits:    res.Bundle.Hits,
		EvidenceItems: len(res.Bundle.Items),
		NoEvidence:    res.Bundle.Empty(),
		PayloadBytes:  res.PayloadBytes,
		OutputBytes:   len(res.Text),
		DurationMS:    res.Duration.Milliseconds(),
		Status:        "ok",
	}
}
