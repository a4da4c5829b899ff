package core

// Queue is the durable FIFO of pending download candidates.
// Implementations persist after every mutation and must be safe for
// concurrent use by download workers.
type Queue interface {
	// Extend appends candidates and persists. No-op on empty input.
	Extend(items []Candidate)

	// PopNext removes and returns the oldest candidate, persisting the
	// shrunk queue. Returns false when the queue is empty.
	PopNext() (Candidate, bool)

	// Requeue puts a popped-but-unprocessed candidate back at the front
	// of the queue, preserving its FIFO position.
	Requeue(c Candidate)

	// EnsureUnique removes candidates whose key was already seen,
	// keeping the first occurrence and preserving order.
	EnsureUnique(key func(Candidate) string)

	// Len returns the number of pending candidates.
	Len() int
}
