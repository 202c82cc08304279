package port

// FileWalker lists the files under a root directory that should be ingested.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	RelPath string // slash-separated, relative to the walked root
	ModTime int64
	Size    int64
}
