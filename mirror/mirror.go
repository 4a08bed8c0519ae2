package mirror

import (
	"bytes"
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/cnosuke/pagemirror/document"
	"github.com/cnosuke/pagemirror/extractor"
	"github.com/cnosuke/pagemirror/fetcher"
	ierrors "github.com/cnosuke/pagemirror/internal/errors"
	"github.com/cnosuke/pagemirror/rewriter"
	"github.com/cnosuke/pagemirror/store"
	"github.com/cnosuke/pagemirror/types"
)

// State is a phase of a mirror run.
type State int

const (
	StateFetchingRoot State = iota
	StateParsing
	StateRewriting
	StateSerializing
	StateWriting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFetchingRoot:
		return "fetching-root"
	case StateParsing:
		return "parsing"
	case StateRewriting:
		return "rewriting"
	case StateSerializing:
		return "serializing"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Config struct {
	MaxWorkers int
	EntryFile  string
	// OnTransition, when set, is called on every state change of a run.
	OnTransition func(job *types.MirrorJob, from, to State)
}

// Mirror drives one-page mirror runs. Runs share nothing but the fetcher, so
// a Mirror may serve several runs at once.
type Mirror struct {
	fetcher fetcher.Fetcher
	cfg     Config
}

func New(f fetcher.Fetcher, cfg *Config) *Mirror {
	c := *cfg
	if c.EntryFile == "" {
		c.EntryFile = store.DefaultFilename
	}
	return &Mirror{fetcher: f, cfg: c}
}

// NewJob validates rawURL and derives the mirror root
// {outputDir}/{host}_files for it.
func NewJob(rawURL, outputDir string) (*types.MirrorJob, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, ierrors.Mark(errors.Wrapf(err, "failed to parse URL %q", rawURL), ierrors.ErrInvalidURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ierrors.Mark(errors.Newf("URL %q must be an absolute http(s) URL", rawURL), ierrors.ErrInvalidURL)
	}
	if outputDir == "" {
		outputDir = "."
	}

	return &types.MirrorJob{
		RootURL: u.String(),
		Origin:  u.Scheme + "://" + u.Host,
		Host:    u.Host,
		RootDir: filepath.Join(outputDir, RootDirName(u.Host)),
	}, nil
}

// RootDirName returns the mirror root directory name for a host. Port
// separators are replaced so the name is portable.
func RootDirName(host string) string {
	return strings.ReplaceAll(host, ":", "_") + "_files"
}

type run struct {
	job   *types.MirrorJob
	state State
	cfg   *Config
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	zap.S().Infow("mirror state changed",
		"url", r.job.RootURL,
		"from", from.String(),
		"to", to.String())
	if r.cfg.OnTransition != nil {
		r.cfg.OnTransition(r.job, from, to)
	}
}

func (r *run) fail(err error) error {
	r.transition(StateFailed)
	return err
}

// Run mirrors job.RootURL into job.RootDir. Only a failure to fetch or parse
// the root page, or to create the mirror root, aborts the run; resource
// failures are counted in the result stats.
func (m *Mirror) Run(ctx context.Context, job *types.MirrorJob) (*types.MirrorResult, error) {
	r := &run{job: job, state: StateFetchingRoot, cfg: &m.cfg}
	zap.S().Infow("starting mirror", "url", job.RootURL, "origin", job.Origin, "root", job.RootDir)

	res, err := m.fetcher.Fetch(ctx, job.RootURL)
	if err != nil {
		return nil, r.fail(ierrors.Mark(errors.Wrapf(err, "failed to fetch root page %s", job.RootURL), ierrors.ErrRootFetch))
	}

	r.transition(StateParsing)
	base, err := url.Parse(res.URL)
	if err != nil {
		return nil, r.fail(errors.Wrapf(err, "failed to parse effective URL %s", res.URL))
	}
	doc, err := document.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, r.fail(errors.Wrapf(err, "failed to parse root page %s", res.URL))
	}

	st, err := store.New(job.RootDir)
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateRewriting)
	rw := rewriter.New(m.fetcher, st, &rewriter.Config{MaxWorkers: m.cfg.MaxWorkers})
	stats := rw.Rewrite(ctx, doc, extractor.New(base, job.Host).References(doc))

	r.transition(StateSerializing)
	out, err := doc.Bytes()
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateWriting)
	entry, err := st.WriteEntry(m.cfg.EntryFile, out)
	if err != nil {
		return nil, r.fail(err)
	}

	root, err := filepath.Abs(st.Root())
	if err != nil {
		root = st.Root()
	}
	entryAbs, err := filepath.Abs(entry)
	if err != nil {
		entryAbs = entry
	}

	r.transition(StateDone)
	zap.S().Infow("mirror completed",
		"url", job.RootURL,
		"root", root,
		"references", stats.References,
		"rewritten", stats.Rewritten,
		"skipped", stats.Skipped)

	return &types.MirrorResult{
		RootURL:   job.RootURL,
		Root:      root,
		EntryPath: entryAbs,
		Stats:     stats,
	}, nil
}
