package models

// Match is a candidate Spotify track for a recognized song.
//
// Confidence is in [0, 1]; the strict Spotify verification reports 0.99.
type Match struct {
	ID          string  `json:"id"`
	Track       string  `json:"track"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album,omitempty"`
	AlbumArtURL string  `json:"album_art,omitempty"`
	PreviewURL  string  `json:"preview_url,omitempty"`
	SpotifyURI  string  `json:"spotify_uri"`
	SpotifyURL  string  `json:"spotify_url,omitempty"`
	Popularity  int     `json:"popularity,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Label formats the match as "Track by Artist".
func (m Match) Label() string {
	return m.Track + " by " + m.Artist
}
