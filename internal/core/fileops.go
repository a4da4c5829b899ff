package core

// FileOps abstracts the filesystem operations the pipeline and sweeper
// need, so tests can run against real temp dirs while keeping the
// collision and traversal rules in one place.
type FileOps interface {
	// SafeMove moves src to dst, creating parent directories and
	// resolving filename collisions with a numeric suffix. It returns
	// the path the file actually landed at. Never overwrites.
	SafeMove(src, dst string) (string, error)

	// WalkFiles visits every regular file under root. prune is consulted
	// for each directory before descending; visit receives the absolute
	// path and size. Walk errors on individual entries are skipped.
	WalkFiles(root string, prune func(dir string) bool, visit func(path string, size int64) error) error

	// RemoveEmptyDirs removes now-empty directories under root in
	// repeated bottom-up passes, returning how many were removed.
	// root itself is never removed.
	RemoveEmptyDirs(root string) (int, error)

	// IsHidden reports whether the path is hidden (dot-prefixed name on
	// unix-like systems).
	IsHidden(path string) bool
}
