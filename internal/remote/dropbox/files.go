package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mediasync/internal/remote"
)

// metadata is the wire shape of a file or folder entry.
type metadata struct {
	Tag            string `json:".tag"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	ServerModified string `json:"server_modified"`
	Size           int64  `json:"size"`
	ContentHash    string `json:"content_hash"`
}

func (m metadata) toEntry() remote.Entry {
	e := remote.Entry{
		Path:        m.PathDisplay,
		Name:        m.Name,
		Kind:        remote.KindFolder,
		Size:        m.Size,
		ContentHash: m.ContentHash,
	}
	if m.Tag == "file" {
		e.Kind = remote.KindFile
		if t, err := time.Parse(time.RFC3339, m.ServerModified); err == nil {
			e.Modified = t
		}
	}
	return e
}

// GetMetadata returns the entry at path. remote.ErrNotFound is the normal
// answer for a path that does not exist yet.
func (c *Client) GetMetadata(ctx context.Context, path string) (remote.Entry, error) {
	body, err := c.MakeRequest(ctx, "/files/get_metadata",
		map[string]any{"path": path}, http.MethodPost)
	if err != nil {
		return remote.Entry{}, err
	}
	var m metadata
	if err := json.Unmarshal(body, &m); err != nil {
		return remote.Entry{}, fmt.Errorf("dropbox: decode metadata: %w", err)
	}
	return m.toEntry(), nil
}

// ListFolder lists the immediate children of path, following pagination
// cursors until the listing is complete.
func (c *Client) ListFolder(ctx context.Context, path string) ([]remote.Entry, error) {
	type page struct {
		Entries []metadata `json:"entries"`
		Cursor  string     `json:"cursor"`
		HasMore bool       `json:"has_more"`
	}

	body, err := c.MakeRequest(ctx, "/files/list_folder", map[string]any{
		"path":                        path,
		"recursive":                   false,
		"include_media_info":          true,
		"include_non_downloadable_files": false,
	}, http.MethodPost)
	if err != nil {
		return nil, err
	}

	var entries []remote.Entry
	for {
		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("dropbox: decode listing: %w", err)
		}
		for _, m := range p.Entries {
			entries = append(entries, m.toEntry())
		}
		if !p.HasMore {
			return entries, nil
		}
		body, err = c.MakeRequest(ctx, "/files/list_folder/continue",
			map[string]any{"cursor": p.Cursor}, http.MethodPost)
		if err != nil {
			return nil, err
		}
	}
}

// CreateFolder creates a folder at path. The caller is expected to have
// checked existence; an "already exists" conflict surfaces as an error.
func (c *Client) CreateFolder(ctx context.Context, path string) error {
	_, err := c.MakeRequest(ctx, "/files/create_folder_v2",
		map[string]any{"path": path, "autorename": false}, http.MethodPost)
	return err
}

// Delete removes the entry at path (recursively for folders).
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.MakeRequest(ctx, "/files/delete_v2",
		map[string]any{"path": path}, http.MethodPost)
	return err
}

// Move relocates an entry, renaming automatically on name collision.
func (c *Client) Move(ctx context.Context, fromPath, toPath string) error {
	_, err := c.MakeRequest(ctx, "/files/move_v2", map[string]any{
		"from_path":  fromPath,
		"to_path":    toPath,
		"autorename": true,
	}, http.MethodPost)
	return err
}
