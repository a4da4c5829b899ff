package core

import "context"

// Discoverer enumerates candidate media locations for one configured
// source. Implementations live outside the core (platform scrapers); the
// pipeline only cares that they emit candidates for items not already
// marked done.
type Discoverer interface {
	// Name identifies the source in logs.
	Name() string

	// Discover enumerates candidates, using the session to skip items
	// already processed and to emit new ones.
	Discover(ctx context.Context, session DiscoverySession) error
}

// DiscoverySession is handed to each Discoverer during phase 1.
type DiscoverySession interface {
	// IsDone reports whether an item was already processed, so the
	// discoverer can avoid even constructing a candidate for it.
	IsDone(ns Namespace, sourceKey, itemID string) bool

	// Emit queues a discovered candidate.
	Emit(c Candidate)
}
