package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

// JobStatus is a point-in-time view of a submission, suitable for polling.
type JobStatus struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	URL       string         `json:"url"`
	Phase     string         `json:"phase"`
	Stage     Stage          `json:"stage"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message"`
	Queued    bool           `json:"queued,omitempty"`
	Matches   []models.Match `json:"matches,omitempty"`
	Song      *models.Song   `json:"song,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	phase Phase
}

// State returns the job phase.
func (s *JobStatus) State() Phase { return s.phase }

type job struct {
	id         string
	userID     string
	url        string
	token      string
	playlistID string
	phase      Phase
	message    string
	queued     bool
	matches    []models.Match
	song       *models.Song
	err        error
	createdAt  time.Time
	updatedAt  time.Time
}

func (j *job) snapshot() *JobStatus {
	s := &JobStatus{
		ID:        j.id,
		UserID:    j.userID,
		URL:       j.url,
		Phase:     j.phase.String(),
		Message:   j.message,
		Queued:    j.queued,
		Matches:   append([]models.Match(nil), j.matches...),
		Song:      j.song,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
		phase:     j.phase,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}

	switch j.phase {
	case Idle:
		s.Stage = StageFromStatus(j.message, false)
	case Success:
		s.Stage = StageSyncing
		s.Progress = 100
	default:
		s.Stage = StageFromStatus(j.message, j.phase == Error)
		s.Progress = StageProgress(s.Stage)
	}
	return s
}

// SubmitOption customizes a submission.
type SubmitOption func(*job)

// WithSpotifyToken saves the result with the given user token instead of the
// engine's default session.
func WithSpotifyToken(token string) SubmitOption {
	return func(j *job) { j.token = token }
}

// WithPlaylist overrides the user's default playlist for this submission.
func WithPlaylist(playlistID string) SubmitOption {
	return func(j *job) { j.playlistID = playlistID }
}

func pendingKey(userID, link string) string {
	return userID + "\x00" + strings.TrimRight(strings.TrimSpace(link), "/")
}

// importClaim marks a pending link that a bulk import is working on.
const importClaim = "import"

// claim reserves link for userID, reporting false when it is already pending.
func (e *StashEngine) claim(userID, link string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := pendingKey(userID, link)
	if _, ok := e.pending[key]; ok {
		return false
	}
	e.pending[key] = importClaim
	return true
}

// unclaim frees a link reserved by claim.
func (e *StashEngine) unclaim(userID, link string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := pendingKey(userID, link)
	if e.pending[key] == importClaim {
		delete(e.pending, key)
	}
}

// Submit starts recognizing link for userID in the background.
//
// A link that is still pending for the same user is not run again: the
// existing job is returned together with [shared.ErrAlreadyPending]. A link
// held by a running import returns a nil job with the same error.
func (e *StashEngine) Submit(ctx context.Context, userID, link string, opts ...SubmitOption) (*JobStatus, error) {
	link = strings.TrimSpace(link)
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	if err := shared.ValidateURL(link); err != nil {
		return nil, err
	}

	now := e.now()

	e.mu.Lock()
	e.pruneLocked(now)

	key := pendingKey(userID, link)
	if id, ok := e.pending[key]; ok {
		var snap *JobStatus
		if existing, ok := e.jobs[id]; ok {
			snap = existing.snapshot()
		}
		e.mu.Unlock()
		return snap, fmt.Errorf("%w: %s", shared.ErrAlreadyPending, link)
	}

	j := &job{
		id:        shared.GenerateID(),
		userID:    userID,
		url:       link,
		phase:     Downloading,
		message:   cacheUpdate().Message,
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(j)
	}
	e.jobs[j.id] = j
	e.pending[key] = j.id
	snap := j.snapshot()
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(context.WithoutCancel(ctx), j)

	return snap, nil
}

// run drives a job through the pipeline and the auto-add decision.
func (e *StashEngine) run(parent context.Context, j *job) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	progress := make(chan ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			if u.Phase == Success || u.Phase == Error {
				continue
			}
			e.apply(j, u)
		}
	}()

	rec, err := e.Recognize(ctx, j.url, progress)
	close(progress)
	<-done

	if err != nil {
		e.finish(j, failedUpdate(err), err)
		return
	}

	prefs := e.preferences(j.userID)
	if ShouldAutoAdd(prefs, rec.Top(), e.threshold) {
		e.mu.Lock()
		j.matches = rec.Matches
		e.mu.Unlock()
		e.stash(ctx, j, 0)
		return
	}

	candidates := e.Candidates(ctx, rec)

	e.mu.Lock()
	defer e.mu.Unlock()
	j.matches = candidates
	if _, busy := e.confirming[j.userID]; busy {
		j.queued = true
		e.applyLocked(j, queuedUpdate())
		e.waiting[j.userID] = append(e.waiting[j.userID], j.id)
		return
	}
	e.openLocked(j)
}

// openLocked moves j into confirming. It is the only way a job becomes the
// user's open confirmation.
func (e *StashEngine) openLocked(j *job) {
	j.queued = false
	e.confirming[j.userID] = j.id
	e.applyLocked(j, confirmUpdate(len(j.matches)))
}

// releaseLocked clears the user's open confirmation and opens the next queued one.
func (e *StashEngine) releaseLocked(userID, jobID string) {
	if e.confirming[userID] == jobID {
		delete(e.confirming, userID)
	}

	queue := e.waiting[userID]
	for i, id := range queue {
		if id == jobID {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}

	if _, busy := e.confirming[userID]; !busy && len(queue) > 0 {
		next := e.jobs[queue[0]]
		queue = queue[1:]
		if next != nil {
			e.openLocked(next)
		}
	}

	if len(queue) == 0 {
		delete(e.waiting, userID)
	} else {
		e.waiting[userID] = queue
	}
}

func (e *StashEngine) apply(j *job, u ProgressUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(j, u)
}

func (e *StashEngine) applyLocked(j *job, u ProgressUpdate) {
	j.phase = u.Phase
	j.message = u.Message
	j.updatedAt = e.now()
}

// finish records a terminal update and frees the job's pending slot.
func (e *StashEngine) finish(j *job, u ProgressUpdate, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyLocked(j, u)
	j.err = err
	delete(e.pending, pendingKey(j.userID, j.url))
	e.releaseLocked(j.userID, j.id)
}

func (e *StashEngine) stash(ctx context.Context, j *job, index int) {
	e.mu.Lock()
	m := j.matches[index]
	e.applyLocked(j, savingUpdate(m))
	e.mu.Unlock()

	song, err := e.Stash(ctx, StashRequest{
		UserID:     j.userID,
		Token:      j.token,
		Link:       j.url,
		Match:      m,
		PlaylistID: j.playlistID,
	})
	if err != nil {
		e.finish(j, failedUpdate(err), err)
		return
	}

	e.mu.Lock()
	j.song = song
	e.mu.Unlock()
	e.finish(j, stashedUpdate(song), nil)
}

// Status returns a snapshot of the job. Unknown or pruned ids return [shared.ErrJobNotFound].
func (e *StashEngine) Status(jobID string) (*JobStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked(e.now())
	j, ok := e.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, jobID)
	}
	return j.snapshot(), nil
}

// Jobs returns snapshots of the user's jobs, oldest first.
func (e *StashEngine) Jobs(userID string) []*JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*JobStatus
	for _, j := range e.jobs {
		if j.userID == userID {
			out = append(out, j.snapshot())
		}
	}
	sortStatuses(out)
	return out
}

// Confirm stashes the match at index for a job awaiting confirmation.
//
// The save is detached from ctx and bounded by the engine timeout, so a client
// that disconnects mid-save does not leave the job half done.
func (e *StashEngine) Confirm(ctx context.Context, jobID string, index int) (*JobStatus, error) {
	e.mu.Lock()
	j, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, jobID)
	}
	if j.phase != Confirming {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: job is %s", shared.ErrNotConfirming, j.phase)
	}
	if index < 0 || index >= len(j.matches) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: match index %d out of range", shared.ErrInvalidInput, index)
	}
	// Leave confirming before saving so a second Confirm is rejected.
	e.applyLocked(j, savingUpdate(j.matches[index]))
	e.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	e.stash(saveCtx, j, index)
	return e.Status(jobID)
}

// Cancel dismisses a job awaiting confirmation. The job ends in [Idle].
func (e *StashEngine) Cancel(jobID string) (*JobStatus, error) {
	e.mu.Lock()
	j, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, jobID)
	}
	if j.phase != Confirming && !j.queued {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: job is %s", shared.ErrNotConfirming, j.phase)
	}
	j.queued = false
	e.mu.Unlock()

	e.finish(j, dismissedUpdate(), nil)
	return e.Status(jobID)
}

// Wait blocks until every background job has finished its current run.
func (e *StashEngine) Wait() {
	e.wg.Wait()
}

func sortStatuses(s []*JobStatus) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].ID < s[j].ID
		}
		return s[i].CreatedAt.Before(s[j].CreatedAt)
	})
}

// pruneLocked drops finished jobs older than the TTL.
func (e *StashEngine) pruneLocked(now time.Time) {
	for id, j := range e.jobs {
		if j.phase.Terminal() && now.Sub(j.updatedAt) > e.jobTTL {
			delete(e.jobs, id)
		}
	}
}
