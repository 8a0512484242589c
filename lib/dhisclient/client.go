package dhisclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
	"github.com/NadeemAtDure/dhis2-core/lib/jobs"
	"github.com/NadeemAtDure/dhis2-core/lib/logging"
	"github.com/NadeemAtDure/dhis2-core/lib/trackerimport"
)

// Selector narrows the discovered configuration down to one server and
// user.
type Selector struct {
	Server string
	User   string
}

// Client is a configured connection to one server.
type Client struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`

	User     string `yaml:"user"`
	Password string `yaml:"password"`

	httpClient *retryablehttp.Client
}

var (
	errNoServer = apierror.New(
		apierror.WithPublicMessage("no server configuration found"),
	)

	errNoMatchingServer = apierror.New(
		apierror.WithPublicMessage("no matching server configuration found"),
	)

	errNoMatchingUser = apierror.New(
		apierror.WithPublicMessage("no matching user configuration found"),
	)
)

// New selects a server and user from the discovered configuration and
// returns a ready client. Transient transport failures are retried at
// the HTTP layer.
func New(ctx context.Context, cfg *Config, selector Selector) (*Client, error) {
	logger := logging.FromContext(ctx)

	servers := cfg.ServerConfigs()
	if len(servers) == 0 {
		return nil, errNoServer
	}

	if selector.Server != "" {
		servers = filterServers(servers, func(x *ServerConfig) bool {
			return x.HasAlias(selector.Server) || x.Host == selector.Server
		})
	}
	if selector.User != "" {
		servers = filterServers(servers, func(x *ServerConfig) bool {
			return x.GetUserConfig(selector.User) != nil
		})
	}
	if len(servers) == 0 {
		return nil, errNoMatchingServer
	}

	serverCfg := servers[0]

	username := selector.User
	if username == "" {
		username = serverCfg.DefaultUser
	}

	userCfg := serverCfg.GetUserConfig(username)
	if userCfg == nil {
		return nil, errNoMatchingUser
	}

	password, err := ReadSecret(userCfg.Password)
	if err != nil {
		return nil, err
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.Logger = nil

	rv := &Client{
		Scheme:     serverCfg.Scheme,
		Host:       serverCfg.Host,
		Port:       serverCfg.Port,
		User:       userCfg.Username,
		Password:   password,
		httpClient: httpClient,
	}
	if rv.Scheme == "" {
		rv.Scheme = "https"
	}

	logger.Debug("chose client configuration",
		zap.String("selector_server", selector.Server),
		zap.String("selector_user", selector.User),
		zap.String("chosen_host", rv.Host),
		zap.String("chosen_scheme", rv.Scheme),
		zap.String("chosen_user", rv.User),
	)

	return rv, nil
}

func filterServers(xs []*ServerConfig, f func(*ServerConfig) bool) []*ServerConfig {
	var rv []*ServerConfig
	for _, x := range xs {
		if f(x) {
			rv = append(rv, x)
		}
	}
	return rv
}

func (c *Client) APIBase() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}

	if c.Port != 0 {
		return fmt.Sprintf("%s://%s:%d/api", scheme, c.Host, c.Port)
	}
	return fmt.Sprintf("%s://%s/api", scheme, c.Host)
}

func (c *Client) apiPath(suffix string) string {
	return strings.TrimRight(c.APIBase(), "/") + "/" + strings.TrimLeft(suffix, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if c.httpClient == nil {
		c.httpClient = retryablehttp.NewClient()
		c.httpClient.Logger = nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.User, c.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return apierror.New(
			apierror.WithHTTPCode(resp.StatusCode),
			apierror.WithErrorID("remote_error"),
			apierror.WithPublicMessage(fmt.Sprintf("server returned status %d", resp.StatusCode)),
			apierror.WithPublicData("body", string(bytes.TrimSpace(data))),
		)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("error parsing response: %w", err)
		}
	}
	return nil
}

// PostEventsSync imports a batch inline and returns the summary.
func (c *Client) PostEventsSync(ctx context.Context, events []trackerimport.Event, opts *trackerimport.ImportOptions) (*trackerimport.ImportSummary, error) {
	path, body, err := c.eventImportRequest(events, opts, false)
	if err != nil {
		return nil, err
	}

	var summary trackerimport.ImportSummary
	if err := c.do(ctx, http.MethodPost, path, body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

type asyncImportResponse struct {
	JobID string `json:"jobId"`
}

// PostEventsAsync starts an import job and returns its identifier.
func (c *Client) PostEventsAsync(ctx context.Context, events []trackerimport.Event, opts *trackerimport.ImportOptions) (string, error) {
	path, body, err := c.eventImportRequest(events, opts, true)
	if err != nil {
		return "", err
	}

	var response asyncImportResponse
	if err := c.do(ctx, http.MethodPost, path, body, &response); err != nil {
		return "", err
	}
	return response.JobID, nil
}

func (c *Client) eventImportRequest(events []trackerimport.Event, opts *trackerimport.ImportOptions, async bool) (string, []byte, error) {
	body, err := json.Marshal(map[string]interface{}{"events": events})
	if err != nil {
		return "", nil, err
	}

	values := url.Values{}
	if async {
		values.Set("async", "true")
	}
	if opts != nil {
		if opts.DryRun {
			values.Set("dryRun", "true")
		}
		if opts.SkipNotifications {
			values.Set("skipNotifications", "true")
		}
		if opts.AtomicMode {
			values.Set("atomicMode", "true")
		}
		if opts.ImportStrategy != "" {
			values.Set("importStrategy", string(opts.ImportStrategy))
		}
	}

	path := c.apiPath("tracker/events")
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return path, body, nil
}

// GetEvent fetches the stored representation of one event.
func (c *Client) GetEvent(ctx context.Context, uid string) (*trackerimport.StoredEvent, error) {
	var event trackerimport.StoredEvent
	if err := c.do(ctx, http.MethodGet, c.apiPath("tracker/events/"+uid), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetJobReport fetches the current report for a job.
func (c *Client) GetJobReport(ctx context.Context, jobID string) (*jobs.Report, error) {
	var report jobs.Report
	if err := c.do(ctx, http.MethodGet, c.apiPath("tracker/jobs/"+jobID+"/report"), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// WaitForJobReport polls until the job leaves the running phase, with
// exponential backoff between polls.
func (c *Client) WaitForJobReport(ctx context.Context, jobID string) (*jobs.Report, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 2 * time.Minute

	var report *jobs.Report
	operation := func() error {
		rv, err := c.GetJobReport(ctx, jobID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if rv.Phase == jobs.PhaseRunning {
			return fmt.Errorf("job %s still running", jobID)
		}
		report = rv
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return report, nil
}

// DataItemsQuery shapes one GET /api/dataItems call.
type DataItemsQuery struct {
	Filters  []string
	Order    []string
	Locale   string
	Page     int
	PageSize int
	Paging   bool
}

// DataItemsPage is one page of an aggregated data item listing.
type DataItemsPage struct {
	Pager *struct {
		Page      int `json:"page"`
		PageCount int `json:"pageCount"`
		PageSize  int `json:"pageSize"`
		Total     int `json:"total"`
	} `json:"pager"`
	DataItems []dimension.DataItem `json:"dataItems"`
}

// QueryDataItems runs an aggregated data item query.
func (c *Client) QueryDataItems(ctx context.Context, query DataItemsQuery) (*DataItemsPage, error) {
	values := url.Values{}
	for _, f := range query.Filters {
		values.Add("filter", f)
	}
	for _, o := range query.Order {
		values.Add("order", o)
	}
	if query.Locale != "" {
		values.Set("locale", query.Locale)
	}
	if !query.Paging {
		values.Set("paging", "false")
	}
	if query.Page > 0 {
		values.Set("page", fmt.Sprintf("%d", query.Page))
	}
	if query.PageSize > 0 {
		values.Set("pageSize", fmt.Sprintf("%d", query.PageSize))
	}

	path := c.apiPath("dataItems")
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page DataItemsPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SystemInfo is the server identity response.
type SystemInfo struct {
	Version     string `json:"version"`
	Revision    string `json:"revision"`
	CurrentUser string `json:"currentUser"`
}

// GetSystemInfo fetches the server build and user identity.
func (c *Client) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.do(ctx, http.MethodGet, c.apiPath("system/info"), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
