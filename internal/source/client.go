package source

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantrail/price-sync/internal/models"
)

const (
	// mastersCacheTTL bounds how long the reference list is served from
	// memory before a refetch.
	mastersCacheTTL = time.Hour

	// mastersFieldCount is the expected field count of one reference line
	mastersFieldCount = 4
)

// Client talks to the external market-data source. It caches the
// reference list in memory with a fixed TTL; the clock is injected so
// expiry is testable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time

	mu               sync.Mutex
	masters          []models.ReferenceEntry
	mastersFetchedAt time.Time
}

// NewClient creates a source client for the given base URL
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// FetchReferenceMasters retrieves the source's full symbol/code
// reference list. Results are cached for one hour; forceRefresh
// bypasses the cache.
func (c *Client) FetchReferenceMasters(ctx context.Context, forceRefresh bool) ([]models.ReferenceEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh && c.masters != nil && c.now().Sub(c.mastersFetchedAt) < mastersCacheTTL {
		return c.masters, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reference/masters", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build masters request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference masters: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference masters request returned status %d", resp.StatusCode)
	}

	var entries []models.ReferenceEntry
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) != mastersFieldCount {
			c.logger.WithFields(logrus.Fields{
				"line":   lineNo,
				"fields": len(fields),
			}).Warn("skipping malformed reference line")
			continue
		}

		entries = append(entries, models.ReferenceEntry{
			Code:           strings.TrimSpace(fields[0]),
			Symbol:         strings.TrimSpace(fields[1]),
			Name:           strings.TrimSpace(fields[2]),
			InstrumentType: strings.TrimSpace(fields[3]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reference masters: %w", err)
	}

	c.masters = entries
	c.mastersFetchedAt = c.now()
	return entries, nil
}
