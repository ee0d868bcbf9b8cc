// package stats derives listening statistics from a user's stash history.
//
// Every function is pure: callers pass the history and the current time.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/desertthunder/stash/internal/models"
)

const (
	week           = 7 * 24 * time.Hour
	topArtistCount = 5
)

// GenreShare is one slice of the genre distribution.
type GenreShare struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Value int    `json:"value"` // percentage of all songs
}

// ArtistCount is an artist with the number of songs stashed.
type ArtistCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Achievement is a milestone and the user's progress toward it.
type Achievement struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Target   int    `json:"target"`
	Current  int    `json:"current"`
	Progress int    `json:"progress"`
	Unlocked bool   `json:"unlocked"`
}

// Summary bundles all statistics for a user.
type Summary struct {
	Total        int           `json:"total"`
	ThisWeek     int           `json:"this_week"`
	Streak       int           `json:"streak"`
	Genres       []GenreShare  `json:"genres"`
	TopArtists   []ArtistCount `json:"top_artists"`
	Achievements []Achievement `json:"achievements"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// TopGenre returns the most stashed genre, or "" with no history.
func (s Summary) TopGenre() string {
	if len(s.Genres) == 0 {
		return ""
	}
	return s.Genres[0].Name
}

type milestone struct {
	id, title string
	target    int
	streak    bool
}

var milestones = []milestone{
	{id: "first-stash", title: "First Stash", target: 1},
	{id: "collector", title: "10 Songs Milestone", target: 10},
	{id: "music-lover", title: "Music Lover", target: 25},
	{id: "curator", title: "Curator", target: 50},
	{id: "week-streak", title: "Week Streak", target: 7, streak: true},
}

func day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Streak counts consecutive calendar days, in now's location, with at least
// one stash. The run may end today or yesterday; anything older is 0.
func Streak(songs []*models.Song, now time.Time) int {
	loc := now.Location()
	days := make(map[time.Time]bool, len(songs))
	for _, s := range songs {
		days[day(s.CreatedAt(), loc)] = true
	}

	cursor := day(now, loc)
	if !days[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak := 0
	for days[cursor] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// GenreDistribution groups songs by genre with rounded percentages.
func GenreDistribution(songs []*models.Song) []GenreShare {
	counts := make(map[string]int)
	for _, s := range songs {
		counts[s.GenreOrUnknown()]++
	}

	shares := make([]GenreShare, 0, len(counts))
	for name, count := range counts {
		shares = append(shares, GenreShare{
			Name:  name,
			Count: count,
			Value: percent(count, len(songs)),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Name < shares[j].Name
	})
	return shares
}

// TopArtists returns the n most stashed artists.
func TopArtists(songs []*models.Song, n int) []ArtistCount {
	counts := make(map[string]int)
	for _, s := range songs {
		if s.Artist != "" {
			counts[s.Artist]++
		}
	}

	artists := make([]ArtistCount, 0, len(counts))
	for name, count := range counts {
		artists = append(artists, ArtistCount{Name: name, Count: count})
	}
	sort.Slice(artists, func(i, j int) bool {
		if artists[i].Count != artists[j].Count {
			return artists[i].Count > artists[j].Count
		}
		return artists[i].Name < artists[j].Name
	})

	if n >= 0 && len(artists) > n {
		artists = artists[:n]
	}
	return artists
}

// ThisWeek counts songs stashed in the seven days before now.
func ThisWeek(songs []*models.Song, now time.Time) int {
	cutoff := now.Add(-week)
	count := 0
	for _, s := range songs {
		if s.CreatedAt().After(cutoff) {
			count++
		}
	}
	return count
}

// Achievements reports progress on every milestone.
func Achievements(songs []*models.Song, now time.Time) []Achievement {
	total := len(songs)
	streak := Streak(songs, now)

	out := make([]Achievement, 0, len(milestones))
	for _, m := range milestones {
		current := total
		if m.streak {
			current = streak
		}
		out = append(out, Achievement{
			ID:       m.id,
			Title:    m.title,
			Target:   m.target,
			Current:  current,
			Progress: min(100, percent(current, m.target)),
			Unlocked: current >= m.target,
		})
	}
	return out
}

// Summarize computes every statistic at once.
func Summarize(songs []*models.Song, now time.Time) Summary {
	return Summary{
		Total:        len(songs),
		ThisWeek:     ThisWeek(songs, now),
		Streak:       Streak(songs, now),
		Genres:       GenreDistribution(songs),
		TopArtists:   TopArtists(songs, topArtistCount),
		Achievements: Achievements(songs, now),
		GeneratedAt:  now,
	}
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
