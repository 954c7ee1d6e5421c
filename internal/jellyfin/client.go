// Package jellyfin talks to a Jellyfin server's REST API.
package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/config"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

const userAgent = "refreshsparse"

// ErrNotConfigured is returned when no server URL is set.
var ErrNotConfigured = errors.New("jellyfin server not configured")

// Client handles communication with the Jellyfin API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	logger     zerolog.Logger
}

// NewClient creates a Jellyfin client. A nil httpClient gets one with the
// configured timeout.
func NewClient(cfg config.JellyfinConfig, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid jellyfin url: %w", err)
	}
	if httpClient == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		logger:     logger.With().Str("component", "jellyfin-client").Logger(),
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Emby-Token", c.apiKey)
	}

	return c.httpClient.Do(req)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("failed to %s: status %d, body: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}

// Ping checks the server is reachable and returns its public info.
func (c *Client) Ping(ctx context.Context) (*ServerInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/System/Info/Public", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get server info", resp)
	}

	var info ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode server info: %w", err)
	}
	return &info, nil
}

// Items streams every item matching q, one page per request.
func (c *Client) Items(ctx context.Context, q ItemsQuery) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		start := 0
		for {
			page, err := c.itemsPage(ctx, q, start)
			if err != nil {
				yield(Item{}, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			start += len(page.Items)
			if len(page.Items) == 0 || start >= page.TotalRecordCount {
				return
			}
		}
	}
}

func (c *Client) itemsPage(ctx context.Context, q ItemsQuery, start int) (*ItemsResponse, error) {
	params := url.Values{}
	params.Set("Recursive", "true")
	params.Set("Fields", "ProviderIds,Overview,SortName,ParentId,PremiereDate,DateCreated,DateLastRefreshed")
	params.Set("EnableImageTypes", "Primary,Backdrop,Logo,Thumb")
	params.Set("SortBy", "SortName")
	params.Set("StartIndex", strconv.Itoa(start))
	params.Set("Limit", strconv.Itoa(c.pageSize))
	if len(q.Types) > 0 {
		params.Set("IncludeItemTypes", strings.Join(q.Types, ","))
	}
	if q.ParentID != "" {
		params.Set("ParentId", q.ParentID)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/Items", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list items", resp)
	}

	var page ItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}

	c.logger.Debug().Int("start", start).Int("count", len(page.Items)).Int("total", page.TotalRecordCount).Msg("Fetched items page")
	return &page, nil
}

// ItemImages returns the images of an item with their file paths.
func (c *Client) ItemImages(ctx context.Context, itemID string) ([]ImageInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/Items/"+url.PathEscape(itemID)+"/Images", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get item images: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get item images", resp)
	}

	var infos []ImageInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("failed to decode item images: %w", err)
	}
	return infos, nil
}

// RefreshItem queues a full metadata and image refresh of one item.
func (c *Client) RefreshItem(ctx context.Context, itemID string, opts library.RefreshOptions) error {
	params := url.Values{}
	params.Set("Recursive", "false")
	params.Set("MetadataRefreshMode", "FullRefresh")
	params.Set("ImageRefreshMode", "FullRefresh")
	params.Set("ReplaceAllMetadata", strconv.FormatBool(opts.ReplaceAllMetadata))
	params.Set("ReplaceAllImages", strconv.FormatBool(opts.ReplaceAllImages))

	resp, err := c.doRequest(ctx, http.MethodPost, "/Items/"+url.PathEscape(itemID)+"/Refresh", params)
	if err != nil {
		return fmt.Errorf("failed to refresh item: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError("refresh item", resp)
	}
	return nil
}
