// Package pipeline runs one conversion: load the base schedule, merge
// calendar feeds into it and render JSON, pentabarf XML and iCalendar.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"vocsched/internal/config"
	"vocsched/internal/fetch"
	"vocsched/internal/ics"
	appLog "vocsched/internal/log"
	"vocsched/internal/metrics"
	"vocsched/internal/pentabarf"
	"vocsched/internal/schedule"
	"vocsched/internal/tree"
	"vocsched/internal/validate"
)

var ErrNoSource = errors.New("pipeline: no schedule source configured")

// Rejection is an imported event that no day window accepted.
type Rejection struct {
	Source string
	UID    string
	Title  string
	Start  time.Time
	Err    error
}

// Artifacts is the output of one successful run.
type Artifacts struct {
	Schedule    *schedule.Schedule
	JSON        []byte
	XML         []byte
	ICS         []byte
	GeneratedAt time.Time

	// Imported counts events merged from calendar feeds.
	Imported int
	Rejected []Rejection
	// Warnings lists fields dropped from the XML; the run still succeeded.
	Warnings []pentabarf.Warning
	// SourceErrors lists calendar feeds that could not be used.
	SourceErrors []error
}

// Runner holds what stays the same between runs.
type Runner struct {
	cfg       *config.Config
	loc       *time.Location
	fetcher   *fetch.Fetcher
	validator *validate.JSON
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Runner)

func WithFetcher(f *fetch.Fetcher) Option { return func(r *Runner) { r.fetcher = f } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("pipeline: timezone: %w", err)
	}
	v, err := validate.NewJSON(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}

	r := &Runner{cfg: cfg, loc: loc, validator: v, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	if r.fetcher == nil {
		r.fetcher = fetch.NewFetcher(cfg.CacheDir, nil)
	}
	return r, nil
}

// Run performs one conversion.
func (r *Runner) Run(ctx context.Context) (a *Artifacts, err error) {
	started := r.now()
	defer func() {
		r.metrics.Run(err, r.now().Sub(started))
		if err != nil {
			appLog.Error("pipeline run failed", err)
		}
	}()

	root, err := r.loadSource(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.validator.Validate(root); err != nil {
		return nil, fmt.Errorf("pipeline: source schedule: %w", err)
	}
	s, err := schedule.New(root)
	if err != nil {
		return nil, err
	}
	s.AddRooms(r.cfg.Rooms)

	a = &Artifacts{Schedule: s, GeneratedAt: started}
	r.importFeeds(ctx, s, a)

	if err := r.render(s, a); err != nil {
		return nil, err
	}

	r.metrics.Published(s.EventCount(), len(a.Warnings))
	appLog.Info("pipeline run done",
		"acronym", s.Acronym(),
		"events", s.EventCount(),
		"imported", a.Imported,
		"rejected", len(a.Rejected),
		"warnings", len(a.Warnings),
	)
	return a, nil
}

func (r *Runner) loadSource(ctx context.Context) (*tree.Map, error) {
	var body []byte
	src := r.cfg.Source
	switch {
	case src.URL != "":
		res, err := r.fetcher.FetchOne(ctx, fetch.Source{ID: "schedule", URL: src.URL})
		if err != nil {
			return nil, fmt.Errorf("pipeline: fetch schedule: %w", err)
		}
		body = res.Body
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("pipeline: read schedule: %w", err)
		}
		body = data
	case r.cfg.Template != nil:
		tpl := r.cfg.Template
		s, err := schedule.FromTemplate(schedule.Template{
			Name:     tpl.Name,
			Congress: tpl.Congress,
			StartDay: tpl.StartDay,
			Days:     tpl.Days,
			Month:    time.Month(tpl.Month),
			Location: r.loc,
			Now:      r.now(),
		})
		if err != nil {
			return nil, err
		}
		return s.Tree(), nil
	default:
		return nil, ErrNoSource
	}

	n, err := tree.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode schedule: %w", err)
	}
	root, ok := n.(*tree.Map)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %T", schedule.ErrMalformedDocument, n)
	}
	return root, nil
}

// importFeeds merges every configured calendar into s. Feed failures and
// rejected events are recorded in a; they do not fail the run.
func (r *Runner) importFeeds(ctx context.Context, s *schedule.Schedule, a *Artifacts) {
	if len(r.cfg.ICS) == 0 {
		return
	}
	days := s.Days()
	if len(days) == 0 {
		appLog.Warn("pipeline: schedule has no days, calendar feeds ignored")
		return
	}
	window := ics.ExpandConfig{
		Location:       r.loc,
		From:           days[0].Start,
		To:             days[len(days)-1].End,
		KeepOutOfRange: true,
	}

	for _, c := range r.cfg.ICS {
		src := ics.Source{ID: c.ID, Room: c.Room, Track: c.Track, IDOffset: c.IDOffset}

		res, err := r.fetcher.FetchOne(ctx, fetch.Source{ID: c.ID, URL: c.URL})
		if err != nil {
			a.SourceErrors = append(a.SourceErrors, fmt.Errorf("%s: %w", c.ID, err))
			appLog.Error("pipeline: calendar fetch failed", err, "id", c.ID, "url", fetch.RedactURL(c.URL))
			continue
		}
		parsed, err := ics.ParseICS(src, res.Body)
		if err != nil {
			a.SourceErrors = append(a.SourceErrors, fmt.Errorf("%s: %w", c.ID, err))
			appLog.Error("pipeline: calendar parse failed", err, "id", c.ID)
			continue
		}
		expanded, err := ics.Expand(parsed, window)
		if err != nil {
			a.SourceErrors = append(a.SourceErrors, fmt.Errorf("%s: %w", c.ID, err))
			continue
		}

		imported, rejected := 0, 0
		events := ics.ToEvents(expanded.Occurrences, ics.ImportOptions{Acronym: s.Acronym(), Location: r.loc})
		for _, ev := range events {
			if err := s.AddEvent(ev); err != nil {
				guid, _ := ev.Fields().String("guid")
				a.Rejected = append(a.Rejected, Rejection{
					Source: c.ID,
					UID:    guid,
					Title:  ev.Title(),
					Start:  ev.Start(),
					Err:    err,
				})
				appLog.Warn("pipeline: event rejected", "source", c.ID, "title", ev.Title(), "start", ev.Start().Format(time.RFC3339), "err", err)
				rejected++
				continue
			}
			imported++
		}
		a.Imported += imported
		r.metrics.Imported(c.ID, imported)
		r.metrics.Rejected(c.ID, rejected)
	}
}

func (r *Runner) render(s *schedule.Schedule, a *Artifacts) error {
	var buf bytes.Buffer
	if err := s.WriteJSON(&buf); err != nil {
		return fmt.Errorf("pipeline: encode json: %w", err)
	}
	a.JSON = bytes.Clone(buf.Bytes())

	res, err := pentabarf.Export(s.Tree())
	if err != nil {
		return err
	}
	buf.Reset()
	if _, err := res.WriteTo(&buf); err != nil {
		return fmt.Errorf("pipeline: write xml: %w", err)
	}
	a.XML = bytes.Clone(buf.Bytes())
	a.Warnings = res.Warnings

	a.ICS = []byte(ics.Export(s, a.GeneratedAt))
	return nil
}

// Files names the output files for a prefix.
func Files(prefix string) (jsonPath, xmlPath, icsPath string) {
	return prefix + ".schedule.json", prefix + ".schedule.xml", prefix + ".schedule.ics"
}

// WriteFiles writes the three artifacts next to each other. Every file is
// replaced atomically.
func WriteFiles(prefix string, a *Artifacts) error {
	jsonPath, xmlPath, icsPath := Files(prefix)
	for _, f := range []struct {
		path string
		data []byte
	}{
		{jsonPath, a.JSON},
		{xmlPath, a.XML},
		{icsPath, a.ICS},
	} {
		if err := config.WriteFileAtomic(f.path, f.data, 0o644); err != nil {
			return fmt.Errorf("pipeline: write %s: %w", f.path, err)
		}
	}
	appLog.Info("pipeline: files written", "json", jsonPath, "xml", xmlPath, "ics", icsPath)
	return nil
}
