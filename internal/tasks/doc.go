// Package tasks turns shared links into saved Spotify tracks with real-time progress reporting.
//
// # Recognition Pipeline
//
// [StashEngine.Recognize] runs the pipeline for one link:
//
//  1. Recognition cache lookup (a hit returns immediately)
//  2. Metadata fast path: yt-dlp metadata is trusted when the Spotify search
//     finds the track it names
//  3. Audio download into the temp dir
//  4. Identification by the [services.Recognizer]
//  5. Verification with [services.Catalog.SearchTrack]
//
// The temp audio file is always removed. Concurrent recognitions of the same
// link share one run. The run is detached from every caller's context and
// bounded by the engine timeout, so a caller that gives up does not fail the
// others.
//
// # Submissions
//
// [StashEngine.Submit] runs the pipeline in the background and tracks it as a
// job that clients poll with [StashEngine.Status]. When the top match clears the
// confidence threshold (or the user enabled auto-add) it is stashed right away;
// otherwise the job waits in [Confirming], with [StashEngine.Candidates] as the
// choices, until [StashEngine.Confirm] or
// [StashEngine.Cancel]. A user has at most one job in [Confirming]; later jobs
// that need confirmation queue behind it.
//
// # Saving
//
// [StashEngine.SaveTrack] writes to Liked Songs, a chosen playlist, or a
// per-genre "Stash: <Genre>" playlist (smart sort).
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking. [StageFromStatus] maps
// update messages onto the three overlay stages.
//
// # Bulk Import
//
// [StashEngine.Import] processes many links with a bounded worker pool and a
// token-bucket rate limiter.
package tasks
