package engine

import (
	"path"

	"mediasync/pkg/models"
)

// maxFolderDepth bounds the ancestor walk so a malformed parent chain can
// never loop forever.
const maxFolderDepth = 32

// remoteFolderPath computes a folder's remote path by walking its ancestor
// chain to the root and concatenating names under the configured root
// path. The walk is deterministic; a missing ancestor ends the walk and
// the path is rooted with whatever chain was resolved.
func (e *Engine) remoteFolderPath(f models.Folder) string {
	segments := []string{f.Name}
	parent := f.ParentID
	for depth := 0; parent != 0 && depth < maxFolderDepth; depth++ {
		pf, err := e.folders.GetFolder(parent)
		if err != nil {
			break
		}
		segments = append([]string{pf.Name}, segments...)
		parent = pf.ParentID
	}
	return path.Join(append([]string{e.cfg.RootPath}, segments...)...)
}

// remoteFilePath is the destination of a file record inside its folder's
// remote path.
func remoteFilePath(folderPath, filename string) string {
	return path.Join(folderPath, filename)
}
