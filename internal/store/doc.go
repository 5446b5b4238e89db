// Package store provides document persistence for chats and cached places.
//
// Chats own an ordered message log, an optional geolocation, the AI service
// thread handle, and the ids of places referenced during the conversation.
// Places are cached copies of externally-sourced documents; the core only
// mutates them to attach photo descriptions.
//
// The SQLite implementation keeps nested document parts (location, place id
// list, photo list, provider payload) as JSON columns. Read operations
// return (nil, nil) for missing documents rather than an error.
package store
