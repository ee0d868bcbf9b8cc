package tasks

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ImportOpts contains configuration for bulk imports.
type ImportOpts struct {
	Token      string  // Spotify user token (empty for the engine's default session)
	PlaylistID string  // Target playlist (empty for the user's default)
	Workers    int     // Concurrent workers (default: 2)
	RateLimit  float64 // Links started per second (default: 0.5)
	AcceptTop  bool    // Stash the top match even when it would need confirmation
	DryRun     bool    // Recognize only, never write to Spotify or history
}

// ImportResult is the outcome for one link.
//
// Song is set when the link was stashed and Err when it failed; otherwise Match
// holds the top candidate that still needs confirmation.
type ImportResult struct {
	URL   string        `json:"url"`
	Match *models.Match `json:"match,omitempty"`
	Song  *models.Song  `json:"song,omitempty"`
	Err   error         `json:"-"`
}

// ImportSummary contains the results of a bulk import.
type ImportSummary struct {
	Total       int            `json:"total"`
	Stashed     int            `json:"stashed"`
	Unconfirmed int            `json:"unconfirmed"`
	Failed      int            `json:"failed"`
	Results     []ImportResult `json:"results"`
}

// ReadLinks reads one link per line, skipping blanks, comments and duplicates.
func ReadLinks(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	var links []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if link := shared.ExtractSharedURL(line); link != "" {
			line = link
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		links = append(links, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}
	return links, nil
}

// Import recognizes and stashes many links concurrently with rate limiting and progress tracking.
//
// Duplicate links are processed once. A link that is already pending for the
// user, from a submission or another import, fails with
// [shared.ErrAlreadyPending]. Per-link failures are reported in the summary.
// The returned error is only set when ctx ends before every link was processed.
func (e *StashEngine) Import(ctx context.Context, userID string, links []string, opts ImportOpts, prog chan<- ProgressUpdate) (*ImportSummary, error) {
	links = uniqueLinks(links)
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Workers > 10 {
		opts.Workers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 0.5
	}

	summary := &ImportSummary{
		Total:   len(links),
		Results: make([]ImportResult, len(links)),
	}
	prefs := e.preferences(userID)
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	var (
		mu        sync.Mutex
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i, link := range links {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			res := e.importOne(gctx, userID, link, prefs, opts)

			mu.Lock()
			summary.Results[i] = res
			completed++
			e.sendProgress(prog, importUpdate(completed, len(links), res))
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()

	for i := range summary.Results {
		res := &summary.Results[i]
		if res.URL == "" {
			res.URL = links[i]
			res.Err = fmt.Errorf("%w: import interrupted", shared.ErrTimeout)
		}
		switch {
		case res.Err != nil:
			summary.Failed++
		case res.Song != nil:
			summary.Stashed++
		default:
			summary.Unconfirmed++
		}
	}

	if err == nil {
		err = ctx.Err()
	}
	return summary, err
}

// uniqueLinks drops blank and repeated links, keeping first occurrences in order.
func uniqueLinks(links []string) []string {
	seen := make(map[string]bool, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		link = strings.TrimSpace(link)
		key := strings.TrimRight(link, "/")
		if link == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, link)
	}
	return out
}

func (e *StashEngine) importOne(ctx context.Context, userID, link string, prefs *models.Preferences, opts ImportOpts) ImportResult {
	res := ImportResult{URL: link}

	if !e.claim(userID, link) {
		res.Err = fmt.Errorf("%w: %s", shared.ErrAlreadyPending, link)
		return res
	}
	defer e.unclaim(userID, link)

	rec, err := e.Recognize(ctx, link, nil)
	if err != nil {
		res.Err = err
		return res
	}
	top := rec.Top()
	res.Match = &top

	if opts.DryRun || !(opts.AcceptTop || ShouldAutoAdd(prefs, top, e.threshold)) {
		return res
	}

	song, err := e.Stash(ctx, StashRequest{
		UserID:     userID,
		Token:      opts.Token,
		Link:       link,
		Match:      top,
		PlaylistID: opts.PlaylistID,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Match = nil
	res.Song = song
	return res
}
