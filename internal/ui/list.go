package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/stash/internal/models"
	"github.com/dustin/go-humanize"
)

var _ list.Item = songItem{}

// songItem wraps [models.Song] to implement [list.Item].
type songItem struct {
	song *models.Song
	now  time.Time
}

func (i songItem) FilterValue() string { return i.song.Track + " " + i.song.Artist }
func (i songItem) Title() string       { return i.song.Track }
func (i songItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.song.Artist, i.song.GenreOrUnknown())
	if !i.song.CreatedAt().IsZero() {
		desc = fmt.Sprintf("%s • %s", desc, humanize.RelTime(i.song.CreatedAt(), i.now, "ago", "from now"))
	}
	return desc
}

func songItems(songs []*models.Song, now time.Time) []list.Item {
	items := make([]list.Item, len(songs))
	for i, s := range songs {
		items[i] = songItem{song: s, now: now}
	}
	return items
}
