package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// singleShotThreshold is the payload size above which uploads switch to
	// a chunked session.
	singleShotThreshold = 4 << 20
	// chunkSize is the fixed append size for session uploads.
	chunkSize = 4 << 20
)

// contentRequest issues one request against the content host. arg is
// serialized into the Dropbox-API-Arg header; body may be nil.
func (c *Client) contentRequest(ctx context.Context, endpoint string, arg any, body io.Reader) (*http.Response, error) {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token())
	req.Header.Set("Dropbox-API-Arg", string(argJSON))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("dropbox: %s: HTTP %d: %s", endpoint, resp.StatusCode, detail)
	}
	return resp, nil
}

// Upload transfers the local file to remotePath, overwriting any existing
// entry. Payloads above the single-shot threshold stream through a chunked
// upload session so large files never sit in memory whole.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("dropbox: open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("dropbox: stat %s: %w", localPath, err)
	}

	if info.Size() <= singleShotThreshold {
		return c.uploadSingle(ctx, f, remotePath)
	}
	return c.uploadSession(ctx, f, info.Size(), remotePath)
}

func (c *Client) uploadSingle(ctx context.Context, f *os.File, remotePath string) error {
	resp, err := c.contentRequest(ctx, "/files/upload", map[string]any{
		"path": remotePath,
		"mode": "overwrite",
		"mute": true,
	}, f)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) uploadSession(ctx context.Context, f *os.File, size int64, remotePath string) error {
	// Start the session with the first chunk.
	resp, err := c.contentRequest(ctx, "/files/upload_session/start",
		map[string]any{"close": false}, io.LimitReader(f, chunkSize))
	if err != nil {
		return err
	}
	var start struct {
		SessionID string `json:"session_id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&start)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("dropbox: decode session start: %w", err)
	}

	offset := int64(chunkSize)
	if offset > size {
		offset = size
	}

	// Append full chunks until only the final partial chunk remains.
	for size-offset > 0 {
		n := int64(chunkSize)
		if remaining := size - offset; remaining < n {
			n = remaining
		}
		resp, err := c.contentRequest(ctx, "/files/upload_session/append_v2", map[string]any{
			"cursor": map[string]any{"session_id": start.SessionID, "offset": offset},
			"close":  false,
		}, io.LimitReader(f, n))
		if err != nil {
			return err
		}
		resp.Body.Close()
		offset += n
	}

	// Commit: overwrite semantics with rename on a conflicting concurrent write.
	resp, err = c.contentRequest(ctx, "/files/upload_session/finish", map[string]any{
		"cursor": map[string]any{"session_id": start.SessionID, "offset": offset},
		"commit": map[string]any{
			"path":       remotePath,
			"mode":       "overwrite",
			"autorename": true,
			"mute":       true,
		},
	}, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Download streams the remote file to localPath. Transient timeouts are
// retried with an increasing timeout budget, capped at three attempts.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(attempt)*baseTimeout)
		err := c.downloadOnce(attemptCtx, remotePath, localPath)
		cancel()
		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return err
		}
		lastErr = err
		c.logger.Warn("download timed out, retrying", "path", remotePath, "attempt", attempt)
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("dropbox: download %s: attempts exhausted: %w", remotePath, lastErr)
}

func (c *Client) downloadOnce(ctx context.Context, remotePath, localPath string) error {
	resp, err := c.contentRequest(ctx, "/files/download",
		map[string]any{"path": remotePath}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("dropbox: create %s: %w", localPath, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(localPath)
		return fmt.Errorf("dropbox: write %s: %w", localPath, err)
	}
	return out.Close()
}
