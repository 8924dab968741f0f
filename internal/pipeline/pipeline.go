package pipeline

import (
	"context"
	"time"

	"icsfilter/internal/config"
	"icsfilter/internal/filter"
	"icsfilter/internal/ics"
	appLog "icsfilter/internal/log"
)

// Options configures a single pipeline run.
type Options struct {
	Criteria    filter.Criteria
	StrictRRule bool

	// ProdID and Now feed the serializer; Now defaults to time.Now.
	ProdID string
	Now    func() time.Time
}

// Result is the output of a successful run.
type Result struct {
	Output    []byte
	Stats     filter.Stats
	Recurring int // surviving events that had an RRULE re-inserted
}

// Run filters and converts one calendar document:
//
//	body -> {recurrence index, structured parse} -> filter -> serialize
//
// It is pure: it performs no I/O and returns no output on any error.
func Run(body []byte, opts Options) (Result, error) {
	index, err := ics.BuildRecurrenceIndex(body, ics.IndexConfig{StrictRRule: opts.StrictRRule})
	if err != nil {
		return Result{}, err
	}

	doc, err := ics.ParseDocument(body)
	if err != nil {
		return Result{}, err
	}

	kept, stats := filter.Apply(doc, opts.Criteria)

	recurring := 0
	for _, ev := range kept.Events {
		rule, present, err := index.Rule(ev.UID)
		if err != nil {
			return Result{}, err
		}
		if !present {
			continue
		}
		recurring++
		if !opts.Criteria.Cutoff.IsZero() && appLog.Enabled(appLog.LevelDebug) {
			logNextOccurrence(ev.UID, rule, ev.Start, opts.Criteria.Cutoff)
		}
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	out, err := ics.Serialize(kept, index, ics.SerializeConfig{ProdID: opts.ProdID, Stamp: now()})
	if err != nil {
		return Result{}, err
	}

	return Result{Output: out, Stats: stats, Recurring: recurring}, nil
}

// nextOccurrence is swapped in tests.
var nextOccurrence = ics.NextOccurrence

func logNextOccurrence(uid, rule string, start, after time.Time) {
	next, ok, err := nextOccurrence(rule, start, after)
	if err != nil {
		appLog.Debug("recurrence rule not understood", "uid", uid, "rule", rule, "err", err)
		return
	}
	if !ok {
		appLog.Debug("recurring event has no occurrence after cutoff", "uid", uid, "rule", rule)
		return
	}
	appLog.Debug("recurring event kept", "uid", uid, "next", next.Format(time.DateOnly))
}

// Source supplies raw calendar bytes.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
}

// URLSource downloads the document through an ics.Fetcher.
type URLSource struct {
	Fetcher *ics.Fetcher
	URL     string
}

func (s URLSource) Load(ctx context.Context) ([]byte, error) {
	res, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// FileSource reads the document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) ([]byte, error) {
	return ics.ReadDocument(s.Path)
}

// Execute loads from src, runs the pipeline and writes the result to
// outPath atomically. On any error outPath is left untouched.
func Execute(ctx context.Context, src Source, outPath string, opts Options) (Result, error) {
	body, err := src.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	res, err := Run(body, opts)
	if err != nil {
		return Result{}, err
	}

	if err := config.WriteFileAtomic(outPath, res.Output, 0o644); err != nil {
		return Result{}, err
	}

	appLog.Info("calendar written",
		"output", outPath,
		"parsed", res.Stats.Parsed,
		"kept", res.Stats.Kept,
		"dropped_cutoff", res.Stats.DroppedCutoff,
		"dropped_no_keyword", res.Stats.DroppedNoKeyword,
		"recurring", res.Recurring,
	)
	return res, nil
}
