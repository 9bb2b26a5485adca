package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"paperdesk/internal/logging"
)

// DownloadPDF fetches a paper's PDF into destDir, returning the local path.
// An already-downloaded file is detected and reused, never re-fetched.
func (c *Client) DownloadPDF(ctx context.Context, paperID, pdfURL, destDir string) (string, error) {
	if pdfURL == "" {
		return "", fmt.Errorf("no pdf url for %s", paperID)
	}

	filename := strings.ReplaceAll(paperID, "/", "_") + ".pdf"
	dest := filepath.Join(destDir, filename)

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		logging.APIDebug("pdf already downloaded: %s", dest)
		return dest, nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create pdf dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download pdf: http %s", resp.Status)
	}

	// Write to a temp file first so a partial download never looks complete.
	tmp, err := os.CreateTemp(destDir, filename+".part*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}

	logging.API("downloaded pdf %s -> %s", paperID, dest)
	return dest, nil
}
