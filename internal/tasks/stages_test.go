package tasks

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStageFromStatus(t *testing.T) {
	tests := []struct {
		status  string
		isError bool
		want    Stage
	}{
		{"Downloading audio...", false, StageExtracting},
		{"EXTRACTING metadata", false, StageExtracting},
		{"Identifying song...", false, StageIdentifying},
		{"recognize in progress", false, StageIdentifying},
		{"Syncing library", false, StageSyncing},
		{"Adding to Spotify...", false, StageSyncing},
		{"Verifying on Spotify...", false, StageSyncing},
		{"Thinking", false, StageIdentifying},
		{"", false, StageIdentifying},
		{"Downloading audio...", true, StageError},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := StageFromStatus(tt.status, tt.isError); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStageProgress(t *testing.T) {
	tests := map[Stage]int{
		StageExtracting:  33,
		StageIdentifying: 67,
		StageSyncing:     100,
		StageError:       0,
		Stage("bogus"):   0,
	}
	for stage, want := range tests {
		if got := StageProgress(stage); got != want {
			t.Errorf("%s: expected %d, got %d", stage, want, got)
		}
	}
}

func TestStages(t *testing.T) {
	got := Stages()
	want := []Stage{StageExtracting, StageIdentifying, StageSyncing}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}

	got[0] = StageError
	if Stages()[0] != StageExtracting {
		t.Error("expected Stages to return a copy")
	}
}

func TestPhase(t *testing.T) {
	names := map[Phase]string{
		Idle:        "idle",
		Downloading: "downloading",
		Extracting:  "extracting",
		Identifying: "identifying",
		Verifying:   "verifying",
		Confirming:  "confirming",
		Saving:      "saving",
		Success:     "success",
		Error:       "error",
		Phase(99):   "",
	}
	for p, want := range names {
		if got := p.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	for _, p := range []Phase{Idle, Success, Error} {
		if !p.Terminal() {
			t.Errorf("expected %s to be terminal", p)
		}
	}
	if Confirming.Terminal() {
		t.Error("expected confirming to be non-terminal")
	}
}
