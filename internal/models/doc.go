// Package models defines domain entities and persistence interfaces for stash.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs exchanged with services and clients
//   - [Match] : A candidate Spotify track for a recognized song
//   - [Preferences] : Per-user settings (auto-add, default playlist, theme)
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [User] : Accounts, usually linked to a Spotify profile
//   - [Song] : A stashed track in a user's history
//
// Persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
//
// The playlist id "1" ([LikedSongsID]) always means the user's Liked Songs and
// "smart_sort" ([SmartSortID]) routes a track into a per-genre playlist.
package models
