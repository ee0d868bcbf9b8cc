// package formatter exports stash history and stats to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/stats"
	"github.com/dustin/go-humanize"
)

// Format is a history export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

const dateLayout = "2006-01-02"

// Formats lists every supported export format.
func Formats() []Format {
	return []Format{FormatCSV, FormatMarkdown, FormatText, FormatJSON}
}

// ParseFormat accepts a format name or a common alias ("markdown", "text").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidInput, s)
	}
}

// Export renders songs in the given format.
func Export(format Format, songs []*models.Song) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(songs)
	case FormatMarkdown:
		return ExportToMarkdown(songs, "")
	case FormatText:
		return ExportToText(songs)
	case FormatJSON:
		return ExportToJSON(songs)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidInput, format)
	}
}

// Write renders songs and writes them to w.
func Write(w io.Writer, format Format, songs []*models.Song) error {
	data, err := Export(format, songs)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// ExportToCSV converts history to CSV with columns: ID, Date, Track, Artist, Genre, Source, Playlist, Spotify URL, Link
func ExportToCSV(songs []*models.Song) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Date", "Track", "Artist", "Genre", "Source", "Playlist", "Spotify URL", "Link"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range songs {
		record := []string{
			s.ID(),
			s.CreatedAt().Format(dateLayout),
			s.Track,
			s.Artist,
			s.GenreOrUnknown(),
			s.Source,
			s.PlaylistName,
			s.SpotifyURL,
			s.URL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts history to Markdown with an optional cover image
func ExportToMarkdown(songs []*models.Song, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Stash History\n\n")

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	buf.WriteString(fmt.Sprintf("**Songs**: %d\n\n", len(songs)))

	buf.WriteString("## Songs\n\n")
	for i, s := range songs {
		title := s.Track
		if s.SpotifyURL != "" {
			title = fmt.Sprintf("[%s](%s)", s.Track, s.SpotifyURL)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s (%s)", i+1, s.Artist, title, s.GenreOrUnknown()))
		if s.Source != "" && s.URL != "" {
			buf.WriteString(fmt.Sprintf(" via [%s](%s)", s.Source, s.URL))
		}
		buf.WriteString(fmt.Sprintf(" · %s\n", s.CreatedAt().Format(dateLayout)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts history to plain text
func ExportToText(songs []*models.Song) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Stash history: %d songs\n\n", len(songs)))

	for i, s := range songs {
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s] %s\n", i+1, s.Artist, s.Track, s.GenreOrUnknown(), s.CreatedAt().Format(dateLayout)))
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts history to indented JSON
func ExportToJSON(songs []*models.Song) ([]byte, error) {
	if songs == nil {
		songs = []*models.Song{}
	}
	data, err := json.MarshalIndent(songs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return append(data, '\n'), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ExportResult lists the files written by [WriteExport].
type ExportResult struct {
	Path       string
	Files      []string
	CoverImage string
}

// WriteExport writes songs to path in the given format.
//
// Markdown exports create a directory at path holding README.md and, when the
// newest song has album art, cover.jpg. Other formats write a single file;
// an empty path defaults to stash_history.{format}.
func WriteExport(format Format, songs []*models.Song, path string) (*ExportResult, error) {
	if format == FormatMarkdown {
		return writeMarkdownExport(songs, path)
	}

	if path == "" {
		path = "stash_history." + string(format)
	}

	data, err := Export(format, songs)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return &ExportResult{Path: path, Files: []string{path}}, nil
}

func writeMarkdownExport(songs []*models.Song, outputDir string) (*ExportResult, error) {
	if outputDir == "" {
		outputDir = "stash_history"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &ExportResult{Path: outputDir, Files: []string{}}

	var coverImageFilename string
	if len(songs) > 0 && songs[0].AlbumArtURL != "" {
		imageData, err := DownloadImage(songs[0].AlbumArtURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(songs, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

const (
	cardWidth  = 40
	barWidth   = 16
	cardGenres = 3
)

// StatsCard renders a shareable text card summarizing the user's stats.
func StatsCard(summary stats.Summary, name, vibe string) []byte {
	var buf bytes.Buffer
	rule := strings.Repeat("═", cardWidth)

	title := "STASH"
	if name != "" {
		title = fmt.Sprintf("%s'S STASH", strings.ToUpper(name))
	}

	buf.WriteString(rule + "\n")
	buf.WriteString(center(title, cardWidth) + "\n")
	if vibe != "" {
		buf.WriteString(center(fmt.Sprintf("%q", vibe), cardWidth) + "\n")
	}
	buf.WriteString(rule + "\n\n")

	buf.WriteString(fmt.Sprintf("  Songs stashed   %s\n", humanize.Comma(int64(summary.Total))))
	buf.WriteString(fmt.Sprintf("  This week       %s\n", humanize.Comma(int64(summary.ThisWeek))))
	buf.WriteString(fmt.Sprintf("  Streak          %d %s\n", summary.Streak, plural(summary.Streak, "day", "days")))

	if len(summary.Genres) > 0 {
		buf.WriteString("\n  Top genres\n")
		for i, g := range summary.Genres {
			if i == cardGenres {
				break
			}
			buf.WriteString(fmt.Sprintf("  %-12s %s %3d%%\n", truncate(g.Name, 12), Bar(g.Value, barWidth), g.Value))
		}
	}

	if len(summary.TopArtists) > 0 {
		buf.WriteString(fmt.Sprintf("\n  Most stashed    %s\n", summary.TopArtists[0].Name))
	}

	unlocked := 0
	for _, a := range summary.Achievements {
		if a.Unlocked {
			unlocked++
		}
	}
	buf.WriteString(fmt.Sprintf("  Achievements    %d/%d\n\n", unlocked, len(summary.Achievements)))

	buf.WriteString(rule + "\n")
	if !summary.GeneratedAt.IsZero() {
		buf.WriteString(center(summary.GeneratedAt.Format("January 2, 2006"), cardWidth) + "\n")
	}

	return buf.Bytes()
}

// Bar draws a percentage as a fixed-width bar.
func Bar(percent, width int) string {
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
