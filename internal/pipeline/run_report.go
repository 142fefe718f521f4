package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type ReportSignal struct {
	Code     string  `json:"code"`
	Stage    string  `json:"stage"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value,omitempty"`
}

type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type SectionMetric struct {
	ClientID      string `json:"client_id"`
	SectionID     string `json:"section_id"`
	Title         string `json:"title"`
	FlowName      string `json:"flow_name"`
	Queries       int    `json:"queries"`
	FailedQueries int    `json:"failed_queries"`
	SearchHits    int    `json:"search_hits"`
	EvidenceItems int    `json:"evidence_items"`
	NoEvidence    bool   `json:"no_evidence"`
	PayloadBytes  int    `json:"payload_bytes"`
	OutputBytes   int    `json:"output_bytes"`
	DurationMS    int64  `json:"duration_ms"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

type DeckMetric struct {
	ClientID string `json:"client_id"`
	Key      string `json:"key"`
	Location string `json:"location"`
	Bytes    int    `json:"bytes"`
}

type ReportSummary struct {
	StageCount         int            `json:"stage_count"`
	SectionCount       int            `json:"section_count"`
	FailedStages       int            `json:"failed_stages"`
	FailedSections     int            `json:"failed_sections"`
	NoEvidenceSections int            `json:"no_evidence_sections"`
	DeckCount          int            `json:"deck_count"`
	SignalsBySeverity  map[string]int `json:"signals_by_severity"`
}

// RunReport collects stage timings and per-section metrics of one deck run.
// It is safe for concurrent use.
type RunReport struct {
	mu sync.Mutex

	Version     string          `json:"version"`
	RunID       string          `json:"run_id"`
	GeneratedAt string          `json:"generated_at"`
	Stages      []StageMetric   `json:"stages"`
	Sections    []SectionMetric `json:"sections,omitempty"`
	Decks       []DeckMetric    `json:"decks,omitempty"`
	Signals     []ReportSignal  `json:"signals,omitempty"`
	Summary     ReportSummary   `json:"summary"`
}

type StageHandle struct {
	name    string
	started time.Time
}

func NewRunReport(runID string) *RunReport {
	return &RunReport{
		Version:     "v1",
		RunID:       runID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Stages:      []StageMetric{},
		Sections:    []SectionMetric{},
		Decks:       []DeckMetric{},
		Signals:     []ReportSignal{},
	}
}

func (r *RunReport) BeginStage(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: time.Now().UTC()}
}

func (r *RunReport) EndStage(h StageHandle, status string, counters map[string]float64, notes []string, err error) {
	if r == nil || h.name == "" {
		return
	}
	if strings.TrimSpace(status) == "" {
		status = "ok"
	}
	finished := time.Now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     status,
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
		Counters:   cleanCounters(counters),
		Notes:      cleanNotes(notes),
	}
	if err != nil {
		m.Error = err.Error()
		if status == "ok" {
			m.Status = "error"
		}
	}
	r.mu.Lock()
	r.Stages = append(r.Stages, m)
	r.mu.Unlock()
}

func (r *RunReport) AddSignal(code, stage, severity, message string, value float64) {
	if r == nil {
		return
	}
	s := ReportSignal{
		Code:     strings.TrimSpace(code),
		Stage:    strings.TrimSpace(stage),
		Severity: strings.ToLower(strings.TrimSpace(severity)),
		Message:  strings.TrimSpace(message),
		Value:    value,
	}
	if s.Code == "" || s.Stage == "" || s.Severity == "" || s.Message == "" {
		return
	}
	r.mu.Lock()
	r.Signals = append(r.Signals, s)
	r.mu.Unlock()
}

func (r *RunReport) AddSectionMetric(m SectionMetric) {
	if r == nil || m.SectionID == "" {
		return
	}
	r.mu.Lock()
	r.Sections = append(r.Sections, m)
	r.mu.Unlock()
}

func (r *RunReport) AddDeck(d DeckMetric) {
	if r == nil || d.Key == "" {
		return
	}
	r.mu.Lock()
	r.Decks = append(r.Decks, d)
	r.mu.Unlock()
}

func (r *RunReport) Finalize() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	severityCount := map[string]int{
		"critical": 0,
		"warning":  0,
		"info":     0,
	}
	sort.SliceStable(r.Signals, func(i, j int) bool {
		pi := signalPriority(r.Signals[i].Severity)
		pj := signalPriority(r.Signals[j].Severity)
		if pi == pj {
			if r.Signals[i].Stage == r.Signals[j].Stage {
				return r.Signals[i].Code < r.Signals[j].Code
			}
			return r.Signals[i].Stage < r.Signals[j].Stage
		}
		return pi > pj
	})
	for _, s := range r.Signals {
		severityCount[s.Severity]++
	}

	failedStages := 0
	for _, st := range r.Stages {
		if st.Status != "ok" {
			failedStages++
		}
	}
	failedSections, noEvidence := 0, 0
	for _, sec := range r.Sections {
		if sec.Status != "ok" {
			failedSections++
		}
		if sec.NoEvidence {
			noEvidence++
		}
	}

	r.Summary = ReportSummary{
		StageCount:         len(r.Stages),
		SectionCount:       len(r.Sections),
		FailedStages:       failedStages,
		FailedSections:     failedSections,
		NoEvidenceSections: noEvidence,
		DeckCount:          len(r.Decks),
		SignalsBySeverity:  severityCount,
	}
}

func (r *RunReport) Save(path string) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

func cleanCounters(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanNotes(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func signalPriority(severity string) int {
	switch severity {
	case "critical":
		return 3
	case "warning":
		return 2
	default:
		return 1
	}
}
