// Spotify Web API implementation of [Catalog] and [Library]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// VerifiedConfidence is reported for the match picked by the strict search.
	VerifiedConfidence = 0.99
	searchLimit        = 5
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	Explicit     bool            `json:"explicit"`
	ExternalURLs externalURLs    `json:"external_urls"`
	Popularity   int             `json:"popularity"`
	PreviewURL   string          `json:"preview_url"`
	URI          string          `json:"uri"`
}

// FirstArtist returns the primary artist name, or "" for tracks without artists.
func (t SpotifyTrack) FirstArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistTracks struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Owner       Owner          `json:"owner"`
	Public      bool           `json:"public"`
	Tracks      playlistTracks `json:"tracks"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifyPlaylist `json:"items"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
}

type searchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyOption customizes a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithSpotifyHTTPClient overrides the HTTP client used for API calls.
func WithSpotifyHTTPClient(client *http.Client) SpotifyOption {
	return func(s *SpotifyService) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithSpotifyEndpoints overrides the API base URL and token URL (used by tests).
func WithSpotifyEndpoints(apiURL, tokenURL string) SpotifyOption {
	return func(s *SpotifyService) {
		if apiURL != "" {
			s.baseURL = strings.TrimRight(apiURL, "/")
		}
		if tokenURL != "" {
			s.config.Endpoint.TokenURL = tokenURL
			s.appConfig.TokenURL = tokenURL
		}
	}
}

// SpotifyService talks to the Spotify Web API.
//
// Catalog search uses the user's token when one is set and falls back to the
// client credentials flow otherwise. Library operations require a user token.
type SpotifyService struct {
	config      *oauth2.Config
	appConfig   *clientcredentials.Config
	tokenSource oauth2.TokenSource
	appSource   oauth2.TokenSource
	httpClient  *http.Client
	baseURL     string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:8080/auth/spotify/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"playlist-read-private",
			"playlist-modify-private",
			"playlist-modify-public",
			"user-library-read",
			"user-library-modify",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	s := &SpotifyService{
		config: config,
		appConfig: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyTokenURL,
		},
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.appSource = s.appConfig.TokenSource(context.Background())
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and uses it for later calls.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	s.tokenSource = s.config.TokenSource(context.Background(), token)
	return token, nil
}

// Authenticate sets the user token. Expects an "access_token" (optionally with
// "refresh_token") or an "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken := credentials["access_token"]; accessToken != "" {
		token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
		if refresh := credentials["refresh_token"]; refresh != "" {
			token.RefreshToken = refresh
			s.tokenSource = s.config.TokenSource(context.Background(), token)
		} else {
			s.tokenSource = oauth2.StaticTokenSource(token)
		}
		return nil
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		_, err := s.Exchange(ctx, authCode)
		return err
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// UseToken authenticates with a stored token, refreshing it when it expires.
func (s *SpotifyService) UseToken(token *oauth2.Token) {
	if token == nil {
		s.tokenSource = nil
		return
	}
	s.tokenSource = s.config.TokenSource(context.Background(), token)
}

// Token returns the current user token, refreshing it if needed.
// The result should be persisted since Spotify may rotate the refresh token.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	if s.tokenSource == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return s.tokenSource.Token()
}

// IsAuthenticated reports whether a user token is available.
func (s *SpotifyService) IsAuthenticated() bool {
	return s.tokenSource != nil
}

// WithAccessToken returns a copy of the service bound to a user's access token.
// Used by the HTTP API where each request carries the caller's token.
func (s *SpotifyService) WithAccessToken(accessToken string) *SpotifyService {
	c := *s
	c.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return &c
}

func (s *SpotifyService) userSource() (oauth2.TokenSource, error) {
	if s.tokenSource == nil {
		return nil, fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}
	return s.tokenSource, nil
}

func (s *SpotifyService) catalogSource() oauth2.TokenSource {
	if s.tokenSource != nil {
		return s.tokenSource
	}
	return s.appSource
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, src oauth2.TokenSource, method, endpoint string, body, result any) error {
	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify returned 401", shared.ErrTokenExpired)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: spotify status %d: %s", shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// SearchTrack runs the strict verification search for a track/artist pair.
//
// The keyword query is broader than a field match, so the results are ranked
// by popularity and the most popular item is returned as the only match, at
// [VerifiedConfidence]. Ties keep Spotify's order.
func (s *SpotifyService) SearchTrack(ctx context.Context, track, artist string) ([]models.Match, error) {
	track = strings.TrimSpace(track)
	artist = strings.TrimSpace(artist)
	if track == "" {
		return nil, fmt.Errorf("%w: track is required", shared.ErrInvalidInput)
	}

	items, err := s.search(ctx, strings.TrimSpace(track+" "+artist), searchLimit)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s by %s", shared.ErrNotOnSpotify, track, artist)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Popularity > items[j].Popularity
	})

	return []models.Match{TrackToMatch(items[0], VerifiedConfidence)}, nil
}

// SearchMatches runs a free-text track search and returns every candidate in
// Spotify's order, unscored. Used to fill the confirmation choices.
func (s *SpotifyService) SearchMatches(ctx context.Context, query string, limit int) ([]models.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", shared.ErrInvalidInput)
	}
	if limit <= 0 || limit > 50 {
		limit = searchLimit
	}

	items, err := s.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]models.Match, 0, len(items))
	for _, item := range items {
		matches = append(matches, TrackToMatch(item, 0))
	}
	return matches, nil
}

func (s *SpotifyService) search(ctx context.Context, query string, limit int) ([]SpotifyTrack, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprint(limit))

	var response searchResponse
	if err := s.doRequest(ctx, s.catalogSource(), http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}
	return response.Tracks.Items, nil
}

// TrackToMatch converts a Spotify track into a [models.Match].
func TrackToMatch(t SpotifyTrack, confidence float64) models.Match {
	m := models.Match{
		ID:         t.ID,
		Track:      t.Name,
		Artist:     t.FirstArtist(),
		Album:      t.Album.Name,
		PreviewURL: t.PreviewURL,
		SpotifyURI: t.URI,
		SpotifyURL: t.ExternalURLs.Spotify,
		Popularity: t.Popularity,
		Confidence: confidence,
	}
	if len(t.Album.Images) > 0 {
		m.AlbumArtURL = t.Album.Images[0].URL
	}
	if m.SpotifyURI == "" && t.ID != "" {
		m.SpotifyURI = "spotify:track:" + t.ID
	}
	return m
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*SpotifyUser, error) {
	src, err := s.userSource()
	if err != nil {
		return nil, err
	}

	var user SpotifyUser
	if err := s.doRequest(ctx, src, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}

	var track SpotifyTrack
	if err := s.doRequest(ctx, s.catalogSource(), http.MethodGet, "/tracks/"+url.PathEscape(trackID), nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	src, err := s.userSource()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, src, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Playlist retrieves a playlist by ID.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	src, err := s.userSource()
	if err != nil {
		return nil, err
	}

	var playlist SpotifyPlaylist
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "?fields=id,name,description,public,owner,tracks.total,uri"
	if err := s.doRequest(ctx, src, http.MethodGet, endpoint, nil, &playlist); err != nil {
		return nil, err
	}

	return &playlist, nil
}

// CreatePlaylist creates a playlist owned by userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*SpotifyPlaylist, error) {
	src, err := s.userSource()
	if err != nil {
		return nil, err
	}

	body := map[string]any{"name": name, "description": description, "public": public}

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, src, http.MethodPost, "/users/"+url.PathEscape(userID)+"/playlists", body, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddTracks appends track URIs to a playlist.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	src, err := s.userSource()
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		return fmt.Errorf("%w: no tracks to add", shared.ErrInvalidInput)
	}

	body := map[string]any{"uris": uris}
	return s.doRequest(ctx, src, http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/tracks", body, nil)
}

// SaveTracks adds tracks to the user's Liked Songs.
func (s *SpotifyService) SaveTracks(ctx context.Context, trackIDs []string) error {
	src, err := s.userSource()
	if err != nil {
		return err
	}
	if len(trackIDs) == 0 {
		return fmt.Errorf("%w: no tracks to save", shared.ErrInvalidInput)
	}

	body := map[string]any{"ids": trackIDs}
	return s.doRequest(ctx, src, http.MethodPut, "/me/tracks", body, nil)
}

// GetPlaylists retrieves every playlist of the user behind lib, following pagination.
func GetPlaylists(ctx context.Context, lib Library) ([]Playlist, error) {
	var allPlaylists []Playlist
	limit := 50
	offset := 0

	for {
		response, err := lib.UserPlaylists(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			allPlaylists = append(allPlaylists, Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
			})
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += limit
	}

	return allPlaylists, nil
}
