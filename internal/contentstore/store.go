package contentstore

import "context"

// Entry is one item of a directory listing. ContentRef is the opaque
// handle GetContent resolves; nothing outside the store interprets it.
type Entry struct {
	Name       string
	Path       string
	IsDir      bool
	Size       int64
	ContentRef string
}

// Store is the content-retrieval collaborator the scan pipeline reads
// repositories through. Listing failures for one directory must not
// poison listings of its siblings, so traversal happens one directory
// at a time.
type Store interface {
	ListDir(ctx context.Context, dir string) ([]Entry, error)
	GetContent(ctx context.Context, ref string) ([]byte, error)
}
