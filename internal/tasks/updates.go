package tasks

import (
	"fmt"

	"github.com/desertthunder/stash/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase is a state of the submission state machine.
type Phase int

const (
	Idle Phase = iota
	Downloading
	Extracting
	Identifying
	Verifying
	Confirming
	Saving
	Success
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Extracting:
		return "extracting"
	case Identifying:
		return "identifying"
	case Verifying:
		return "verifying"
	case Confirming:
		return "confirming"
	case Saving:
		return "saving"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return ""
	}
}

// Terminal reports whether no further transitions happen from p.
func (p Phase) Terminal() bool {
	return p == Idle || p == Success || p == Error
}

const pipelineSteps = 5

func cacheUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    1,
		Total:   pipelineSteps,
		Message: "Download queued, checking recent links...",
	}
}

func metadataUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Extracting,
		Step:    2,
		Total:   pipelineSteps,
		Message: "Extracting metadata...",
	}
}

func downloadUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    3,
		Total:   pipelineSteps,
		Message: "Downloading audio...",
	}
}

func identifyUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Identifying,
		Step:    4,
		Total:   pipelineSteps,
		Message: "Identifying song...",
	}
}

func verifyUpdate(track, artist string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Verifying,
		Step:    5,
		Total:   pipelineSteps,
		Message: fmt.Sprintf("Verifying %s by %s on Spotify...", track, artist),
	}
}

func recognizedUpdate(rec *Recognition) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Success,
		Step:    pipelineSteps,
		Total:   pipelineSteps,
		Message: fmt.Sprintf("Found: %s", rec.Top().Label()),
		Data:    rec,
	}
}

func failedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Error,
		Message: err.Error(),
		Data:    err,
	}
}

func confirmUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Confirming,
		Message: fmt.Sprintf("Verify the match (%d candidates)", count),
	}
}

func queuedUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Verifying,
		Message: "Verify pending: waiting for the open confirmation",
	}
}

func savingUpdate(m models.Match) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Saving,
		Message: fmt.Sprintf("Adding %s to Spotify...", m.Label()),
	}
}

func stashedUpdate(song *models.Song) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Success,
		Message: fmt.Sprintf("Added %s by %s to %s", song.Track, song.Artist, song.PlaylistName),
		Data:    song,
	}
}

func dismissedUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Idle,
		Message: "Dismissed",
	}
}

func importUpdate(step, total int, res ImportResult) ProgressUpdate {
	u := ProgressUpdate{Phase: Success, Step: step, Total: total, Data: res}
	switch {
	case res.Err != nil:
		u.Phase = Error
		u.Message = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.URL, res.Err)
	case res.Song != nil:
		u.Message = fmt.Sprintf("[%d/%d] ✓ %s by %s", step, total, res.Song.Track, res.Song.Artist)
	case res.Match != nil:
		u.Phase = Confirming
		u.Message = fmt.Sprintf("[%d/%d] ? %s (needs confirmation)", step, total, res.Match.Label())
	}
	return u
}
