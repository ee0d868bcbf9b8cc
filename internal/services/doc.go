// Package services wraps the external systems stash depends on.
//
// # Spotify
//
// [SpotifyService] implements [Catalog] and [Library] with golang.org/x/oauth2.
// Catalog search uses the client credentials flow unless a user token is set;
// library writes (Liked Songs, playlists) need a user token obtained through the
// authorization code flow. Stored tokens are refreshed by the oauth2 token source.
//
// # Extraction
//
// [YtDlpExtractor] shells out to yt-dlp for metadata and audio. When ffmpeg is
// on the PATH the audio is converted to mp3, otherwise the native container is kept.
//
// # Recognition
//
// [GeminiRecognizer] implements [Recognizer] on google.golang.org/genai. Audio is
// sent inline; genre and vibe answers degrade to fixed strings instead of failing.
//
// # Remote backend
//
// [RemoteClient] is a typed client for a hosted stash server, built on the raw
// [APIService].
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : no user token for a library call
//   - [shared.ErrTokenExpired] : Spotify answered 401
//   - [shared.ErrAPIRequest] : non-2xx response
//   - [shared.ErrNotOnSpotify] : nothing in the catalog matched
//   - [shared.ErrMissingBinary] : yt-dlp is not installed
//   - [shared.ErrDownloadFailed], [shared.ErrRecognitionFailed]
package services
