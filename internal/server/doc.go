// Package server provides HTTP routing, middleware, the stash API, and OAuth handling for the CLI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method dispatch, so one path
// can serve several methods and paths can carry wildcards ("/stash/{id}").
//
// # API
//
// [API] exposes the recognition backend and the stash flow:
//
//	GET    /                     health
//	POST   /recognize            run the pipeline for one link
//	POST   /save_track           save a track to Liked Songs, a playlist, or Smart Sort
//	POST   /analyze_vibe         describe a list of songs
//	POST   /stash                start a background job (202, or 409 when already pending)
//	GET    /stash/{id}           poll a job
//	POST   /stash/{id}/confirm   pick a candidate
//	POST   /stash/{id}/cancel    dismiss the confirmation
//	GET    /share                share-target entry point
//	GET    /history              list, DELETE /history/{id} removes
//	GET    /preferences          read, PUT updates
//	GET    /stats                listening statistics
//	GET    /playlists            stash destinations
//
// Errors are returned as {"detail": "..."} with a status chosen by [StatusFor].
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks. The CLI's "auth spotify" command serves it
// on a temporary server at the redirect URI and shuts down after receiving the token.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
