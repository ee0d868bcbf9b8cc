package tasks

import (
	"math"
	"strings"
)

// Stage is one step of the three-step processing overlay.
type Stage string

const (
	StageExtracting  Stage = "extracting"
	StageIdentifying Stage = "identifying"
	StageSyncing     Stage = "syncing"
	StageError       Stage = "error"
)

var overlayStages = []Stage{StageExtracting, StageIdentifying, StageSyncing}

// StageFromStatus maps backend status text onto an overlay stage.
// Matching is case-insensitive; unrecognized text is treated as identifying.
func StageFromStatus(status string, isError bool) Stage {
	if isError {
		return StageError
	}

	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "download"), strings.Contains(s, "extract"):
		return StageExtracting
	case strings.Contains(s, "identify"), strings.Contains(s, "recognize"):
		return StageIdentifying
	case strings.Contains(s, "sync"), strings.Contains(s, "add"), strings.Contains(s, "verif"):
		return StageSyncing
	default:
		return StageIdentifying
	}
}

// StageProgress returns the overlay progress percentage for stage, rounded to
// the nearest whole percent. The error stage reports 0.
func StageProgress(stage Stage) int {
	for i, s := range overlayStages {
		if s == stage {
			return int(math.Round(float64(i+1) / float64(len(overlayStages)) * 100))
		}
	}
	return 0
}

// Stages returns the overlay stages in display order.
func Stages() []Stage {
	return append([]Stage(nil), overlayStages...)
}
