package rewriter

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cnosuke/pagemirror/document"
	"github.com/cnosuke/pagemirror/extractor"
	"github.com/cnosuke/pagemirror/fetcher"
	ierrors "github.com/cnosuke/pagemirror/internal/errors"
	"github.com/cnosuke/pagemirror/types"
)

// Storer persists a fetched payload and returns where it landed.
type Storer interface {
	Store(data []byte, contentType, sourceURL string) (*types.StoredAsset, error)
}

type Config struct {
	MaxWorkers int
}

type outcome struct {
	path string
	err  error
}

// Rewriter localizes document references: it downloads each referenced
// resource once, stores it, and points the reference at the stored copy.
type Rewriter struct {
	fetcher    fetcher.Fetcher
	store      Storer
	maxWorkers int

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]outcome
}

// New creates a Rewriter. A Rewriter caches results per URL, so use one per
// mirror run.
func New(f fetcher.Fetcher, s Storer, cfg *Config) *Rewriter {
	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	return &Rewriter{
		fetcher:    f,
		store:      s,
		maxWorkers: workers,
		cache:      make(map[string]outcome),
	}
}

// Localize fetches and stores absURL, returning the stored relative path.
// Concurrent and repeated calls for the same URL share a single download.
func (r *Rewriter) Localize(ctx context.Context, absURL string) (string, error) {
	r.mu.Lock()
	o, ok := r.cache[absURL]
	r.mu.Unlock()
	if ok {
		return o.path, o.err
	}

	v, err, _ := r.group.Do(absURL, func() (interface{}, error) {
		// A flight for this URL may have completed since the lookup above.
		r.mu.Lock()
		o, ok := r.cache[absURL]
		r.mu.Unlock()
		if ok {
			return o.path, o.err
		}

		path, err := r.localize(ctx, absURL)
		r.mu.Lock()
		r.cache[absURL] = outcome{path: path, err: err}
		r.mu.Unlock()
		return path, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Rewriter) localize(ctx context.Context, absURL string) (string, error) {
	res, err := r.fetcher.Fetch(ctx, absURL)
	if err != nil {
		return "", err
	}
	// The effective URL drives file naming and type inference.
	asset, err := r.store.Store(res.Body, res.ContentType, res.URL)
	if err != nil {
		return "", ierrors.Mark(errors.Wrapf(err, "failed to store %s", absURL), ierrors.ErrStorage)
	}
	return asset.RelPath, nil
}

// Fetched returns the number of distinct URLs localized successfully.
func (r *Rewriter) Fetched() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.cache {
		if o.err == nil {
			n++
		}
	}
	return n
}

// Rewrite localizes every reference in refs using a bounded worker pool.
// References whose download or storage fails are left unchanged.
func (r *Rewriter) Rewrite(ctx context.Context, doc *document.Document, refs iter.Seq[types.DocumentReference]) types.MirrorStats {
	stats := types.MirrorStats{}
	statsMu := &sync.Mutex{}

	jobs := make(chan types.DocumentReference, r.maxWorkers)
	wg := &sync.WaitGroup{}

	for w := 1; w <= r.maxWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for ref := range jobs {
				err := r.rewriteOne(ctx, doc, ref)

				statsMu.Lock()
				switch {
				case err == nil:
					stats.Rewritten++
				case errors.Is(err, ierrors.ErrStorage):
					stats.StorageFailed++
				default:
					stats.Skipped++
				}
				statsMu.Unlock()

				if err != nil {
					logFailure(workerID, ref, err)
				}
			}
		}(w)
	}

	total := 0
	for ref := range refs {
		total++
		jobs <- ref
	}
	close(jobs)
	wg.Wait()

	stats.References = total
	stats.AssetsFetched = r.Fetched()

	zap.S().Infow("rewrote references",
		"references", stats.References,
		"rewritten", stats.Rewritten,
		"skipped", stats.Skipped,
		"storage_failed", stats.StorageFailed,
		"assets_fetched", stats.AssetsFetched)

	return stats
}

// logFailure reports a reference left unchanged. Fetch and storage failures
// are expected per resource; anything else is logged as an error.
func logFailure(workerID int, ref types.DocumentReference, err error) {
	fields := []interface{}{
		"worker_id", workerID,
		"url", ref.URL,
		"tag", ref.Tag,
		"kind", ref.Kind.String(),
		"error", err,
	}
	if ierrors.IsRecoverable(err) {
		zap.S().Warnw("skipping resource", fields...)
		return
	}
	zap.S().Errorw("failed to rewrite reference", fields...)
}

func (r *Rewriter) rewriteOne(ctx context.Context, doc *document.Document, ref types.DocumentReference) error {
	relPath, err := r.Localize(ctx, ref.URL)
	if err != nil {
		return err
	}
	if _, err := Apply(doc, ref, relPath); err != nil {
		return errors.Wrapf(err, "failed to rewrite %s", ref.URL)
	}
	zap.S().Debugw("reference rewritten", "url", ref.URL, "path", relPath, "kind", ref.Kind.String())
	return nil
}

// Apply points ref at relPath. Only the URL text changes: style kinds swap
// every occurrence of the matched url(...) token, srcset kinds swap matching
// candidates.
func Apply(doc *document.Document, ref types.DocumentReference, relPath string) (bool, error) {
	switch ref.Kind {
	case types.KindAttr:
		return doc.SetAttr(ref.Node, ref.Attr, relPath)
	case types.KindStyleAttr:
		token := extractor.ReplaceURLToken(ref.Match, ref.Raw, relPath)
		return doc.UpdateAttr(ref.Node, ref.Attr, func(s string) string {
			return strings.ReplaceAll(s, ref.Match, token)
		})
	case types.KindStyleText:
		token := extractor.ReplaceURLToken(ref.Match, ref.Raw, relPath)
		return doc.UpdateText(ref.Node, func(s string) string {
			return strings.ReplaceAll(s, ref.Match, token)
		})
	case types.KindSrcset:
		return doc.UpdateAttr(ref.Node, ref.Attr, func(s string) string {
			return extractor.ReplaceSrcsetURL(s, ref.Raw, relPath)
		})
	default:
		return false, errors.Newf("unknown reference kind %d", ref.Kind)
	}
}
