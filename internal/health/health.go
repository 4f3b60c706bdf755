package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CheckProvider fetches uri (GET) and returns nil if it answered 200,
// an error otherwise. Kept as the generic "can we reach this URL at all"
// check; cmd/upiped calls it against the pipeline's configured SourceURI
// as its own /healthz implementation rather than anything
// HDHomeRun-lineup-specific.
func CheckProvider(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("no source URI configured")
	}
	// Some HTTP sources don't support HEAD; use GET and close body immediately.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("source unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// CheckSource is an alias for CheckProvider under the name cmd/upiped
// actually calls it by; kept distinct from CheckProvider so call sites
// read as "check the pipeline's source" rather than "check a provider".
func CheckSource(ctx context.Context, sourceURI string) error {
	return CheckProvider(ctx, sourceURI)
}
