package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"arcreceipts/internal/core"
	ports "arcreceipts/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options configures the Sheets client.
type Options struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
	Explorer        core.Explorer
	// IDCacheTTL bounds how long the exported id set is trusted.
	IDCacheTTL time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	explorer      core.Explorer

	mu          sync.Mutex
	cachedIDs   map[uint64]struct{}
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// Ensure interface conformance
var _ ports.Ledger = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
// Extra client options are appended after the credentials, which lets tests
// point the client at a local endpoint.
func New(ctx context.Context, opts Options, extra ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts, extra...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, opts), nil
}

func newClient(svc *gsheet.Service, opts Options) *Client {
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = "Receipts"
	}
	ttl := opts.IDCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		sheet:         sheet,
		explorer:      opts.Explorer,
		cacheTTL:      ttl,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when no credentials are configured.
func newSheetsService(ctx context.Context, opts Options, extra ...goption.ClientOption) (*gsheet.Service, error) {
	clientOpts := []goption.ClientOption{goption.WithHTTPClient(newHTTPClientWithPooling())}

	if len(extra) == 0 {
		credentialsJSON, err := loadCredentials(opts)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"component", "sheets",
			"credentials_size", len(credentialsJSON),
			"scope", gsheet.SpreadsheetsScope)
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	clientOpts = append(clientOpts, extra...)

	service, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials(opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// EnsureHeader writes the header row when the first row is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:J1", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	vr := &gsheet.ValueRange{Values: [][]any{ports.Header}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Ledger header written", "component", "sheets", "sheet", c.sheet)
	return nil
}

// Append adds one receipt row below the existing data.
func (c *Client) Append(ctx context.Context, r core.Receipt) (string, error) {
	if r.ID == 0 {
		return "", errors.New("receipt without id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:J", c.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{ports.Row(r, c.explorer)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append receipt %d to %s: %w", r.ID, c.sheet, err)
	}

	c.mu.Lock()
	if c.cachedIDs != nil {
		c.cachedIDs[r.ID] = struct{}{}
	}
	c.mu.Unlock()

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// ListIDs reads the receipt id column. Non-numeric cells, such as the
// header, are ignored. Results are cached for the configured TTL.
func (c *Client) ListIDs(ctx context.Context) ([]uint64, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	if c.cachedIDs != nil && time.Now().Before(c.cacheExpiry) {
		out := idList(c.cachedIDs)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := parseIDColumn(resp.Values)

	c.mu.Lock()
	c.cachedIDs = make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		c.cachedIDs[id] = struct{}{}
	}
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()
	return ids, nil
}

// InvalidateCache forces the next ListIDs to read the sheet.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedIDs = nil
	c.cacheExpiry = time.Time{}
}

func parseIDColumn(values [][]any) []uint64 {
	seen := map[uint64]struct{}{}
	var out []uint64
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func idList(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
