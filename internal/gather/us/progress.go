package us

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

const progressFile = ".progress.json"

// progressState is the on-disk form of an ingestion run's progress.
type progressState struct {
	EndDate   string   `json:"end_date"`
	Completed bool     `json:"completed"`
	Done      []string `json:"done,omitempty"`
	Empty     []string `json:"empty,omitempty"`
}

// progressTracker records which tickers have been fetched up to an end date
// so that an interrupted ingest resumes where it stopped and a finished one
// is a no-op until the next session closes.
type progressTracker struct {
	mu    sync.Mutex
	path  string
	state progressState
	done  map[string]struct{}
	empty map[string]struct{}
}

// newProgressTracker loads the tracker stored in dir, creating dir if needed.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	p := &progressTracker{path: filepath.Join(dir, progressFile)}

	data, err := os.ReadFile(p.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading progress: %w", err)
	default:
		if err := json.Unmarshal(data, &p.state); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", p.path, err)
		}
	}
	p.index()
	return p, nil
}

func (p *progressTracker) index() {
	p.done = make(map[string]struct{}, len(p.state.Done))
	for _, t := range p.state.Done {
		p.done[t] = struct{}{}
	}
	p.empty = make(map[string]struct{}, len(p.state.Empty))
	for _, t := range p.state.Empty {
		p.empty[t] = struct{}{}
	}
}

// IsCompleted reports whether a full run already finished for endDate.
func (p *progressTracker) IsCompleted(endDate string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Completed && p.state.EndDate == endDate
}

// Begin starts or resumes a run for endDate. Progress recorded for a
// different end date is discarded.
func (p *progressTracker) Begin(endDate string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.EndDate == endDate {
		return nil
	}
	p.state = progressState{EndDate: endDate}
	p.index()
	return p.save()
}

// Pending filters tickers down to those not yet fetched in this run.
func (p *progressTracker) Pending(tickers []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, t := range tickers {
		_, done := p.done[t]
		_, empty := p.empty[t]
		if !done && !empty {
			out = append(out, t)
		}
	}
	return out
}

// IsEmpty reports whether ticker returned no bars in this run.
func (p *progressTracker) IsEmpty(ticker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.empty[ticker]
	return ok
}

// MarkBatch records the fetched tickers of a batch and those that came back
// empty, then persists the state.
func (p *progressTracker) MarkBatch(done, empty []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range done {
		if _, ok := p.done[t]; !ok {
			p.done[t] = struct{}{}
			p.state.Done = append(p.state.Done, t)
		}
	}
	for _, t := range empty {
		if _, ok := p.empty[t]; !ok {
			p.empty[t] = struct{}{}
			p.state.Empty = append(p.state.Empty, t)
		}
	}
	return p.save()
}

// MarkCompleted flags the current run as finished.
func (p *progressTracker) MarkCompleted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Completed = true
	return p.save()
}

// save writes the state through a temp file and rename. Callers hold mu.
func (p *progressTracker) save() error {
	slices.Sort(p.state.Done)
	slices.Sort(p.state.Empty)
	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return os.Rename(tmp, p.path)
}
