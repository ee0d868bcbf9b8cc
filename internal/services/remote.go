// Typed client for a hosted stash recognition backend
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

// HealthResponse is returned by GET /.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// RecognizeRequest is the body of POST /recognize.
type RecognizeRequest struct {
	URL string `json:"url"`
}

// RecognizeResponse is the body returned by POST /recognize.
//
// A song that was heard but could not be verified is reported with
// Success false and a 200 status.
type RecognizeResponse struct {
	Success    bool    `json:"success"`
	Track      string  `json:"track,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	AlbumArt   string  `json:"album_art,omitempty"`
	SpotifyURI string  `json:"spotify_uri,omitempty"`
	SpotifyURL string  `json:"spotify_url,omitempty"`
	PreviewURL string  `json:"preview_url,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewRecognizeResponse builds a successful response from a match.
func NewRecognizeResponse(m models.Match) RecognizeResponse {
	return RecognizeResponse{
		Success:    true,
		Track:      m.Track,
		Artist:     m.Artist,
		AlbumArt:   m.AlbumArtURL,
		SpotifyURI: m.SpotifyURI,
		SpotifyURL: m.SpotifyURL,
		PreviewURL: m.PreviewURL,
		Confidence: m.Confidence,
	}
}

// Match converts the response back into a [models.Match].
func (r RecognizeResponse) Match() models.Match {
	m := models.Match{
		Track:       r.Track,
		Artist:      r.Artist,
		AlbumArtURL: r.AlbumArt,
		SpotifyURI:  r.SpotifyURI,
		SpotifyURL:  r.SpotifyURL,
		PreviewURL:  r.PreviewURL,
		Confidence:  r.Confidence,
	}
	if id, ok := strings.CutPrefix(r.SpotifyURI, "spotify:track:"); ok {
		m.ID = id
	}
	return m
}

// SaveTrackRequest is the body of POST /save_track.
type SaveTrackRequest struct {
	Token      string `json:"token"`
	TrackID    string `json:"track_id"`
	PlaylistID string `json:"playlist_id,omitempty"`
}

// SaveTrackResponse is returned by POST /save_track.
type SaveTrackResponse struct {
	Success      bool   `json:"success"`
	PlaylistID   string `json:"playlist_id"`
	PlaylistName string `json:"playlist_name"`
	Genre        string `json:"genre"`
}

// VibeRequest is the body of POST /analyze_vibe.
type VibeRequest struct {
	Songs []string `json:"songs"`
}

// VibeResponse is returned by POST /analyze_vibe.
type VibeResponse struct {
	Vibe string `json:"vibe"`
}

// ErrorResponse is the body of non-2xx responses.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RemoteClient calls a stash backend over HTTP.
type RemoteClient struct {
	api *APIService
}

// NewRemoteClient creates a client for the backend at baseURL.
func NewRemoteClient(baseURL string, client *http.Client) *RemoteClient {
	return &RemoteClient{api: NewAPIService(baseURL, client)}
}

// Health checks that the backend is online.
func (c *RemoteClient) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.api.Get(ctx, "/")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := resp.Decode(&health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Recognize asks the backend to identify the song in link.
// Returns [shared.ErrNotOnSpotify] when the backend could not verify a match.
func (c *RemoteClient) Recognize(ctx context.Context, link string) (*models.Match, error) {
	resp, err := c.api.PostJSON(ctx, "/recognize", RecognizeRequest{URL: link})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result RecognizeResponse
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotOnSpotify, result.Error)
	}

	m := result.Match()
	return &m, nil
}

// SaveTrack asks the backend to save a track for the token's owner.
func (c *RemoteClient) SaveTrack(ctx context.Context, req SaveTrackRequest) (*SaveTrackResponse, error) {
	resp, err := c.api.PostJSON(ctx, "/save_track", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result SaveTrackResponse
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AnalyzeVibe asks the backend to describe a list of songs.
func (c *RemoteClient) AnalyzeVibe(ctx context.Context, songs []string) (string, error) {
	if songs == nil {
		songs = []string{}
	}
	resp, err := c.api.PostJSON(ctx, "/analyze_vibe", VibeRequest{Songs: songs})
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var result VibeResponse
	if err := resp.Decode(&result); err != nil {
		return "", err
	}
	return result.Vibe, nil
}

func checkStatus(resp *APIResponse) error {
	if resp.OK() {
		return nil
	}

	detail := strings.TrimSpace(string(resp.Body))
	var body ErrorResponse
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Detail != "" {
		detail = body.Detail
	}
	return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, detail)
}
