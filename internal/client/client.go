// Package client is the Go client of the conveyor API, used by the
// command line tool and by integration tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

type Client struct {
	baseUrl string
	http    *http.Client
}

func New(baseUrl string) *Client {
	return &Client{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		http:    &http.Client{},
	}
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	u := c.baseUrl + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := apiError{}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListJobsParams mirrors the query parameters of the job listing.
type ListJobsParams struct {
	Statuses []string
	SortBy   string
	Skip     int
	PageSize int
}

func (p ListJobsParams) values() url.Values {
	q := url.Values{}
	for _, s := range p.Statuses {
		q.Add("status", s)
	}
	if p.SortBy != "" {
		q.Set("sortBy", p.SortBy)
	}
	if p.Skip > 0 {
		q.Set("skip", strconv.Itoa(p.Skip))
	}
	if p.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	return q
}

func (c *Client) ListJobs(ctx context.Context, params ListJobsParams) (api.PaginatedResult[api.JobDigest], error) {
	var out api.PaginatedResult[api.JobDigest]
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs", params.values(), nil, &out)
	return out, err
}

func (c *Client) GetJob(ctx context.Context, id api.JobID) (api.JobContext, error) {
	var out api.JobContext
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+id.String(), nil, nil, &out)
	return out, err
}

func (c *Client) GetJobTags(ctx context.Context, id api.JobID) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+id.String()+"/tags", nil, nil, &out)
	return out, err
}

func (c *Client) CreateJob(ctx context.Context, req *api.JobRequest) (api.JobContext, error) {
	var out api.JobContext
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs", nil, req, &out)
	return out, err
}

func (c *Client) AbortJob(ctx context.Context, id api.JobID) (api.JobContext, error) {
	var out api.JobContext
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+id.String()+"/abort", nil, struct{}{}, &out)
	return out, err
}

func (c *Client) RestartJob(ctx context.Context, id api.JobID, restartFrom int) (api.JobContext, error) {
	var out api.JobContext
	body := map[string]int{"restartFrom": restartFrom}
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+id.String()+"/restart", nil, body, &out)
	return out, err
}

func (c *Client) ListSystemLogs(ctx context.Context, skip, pageSize int) (api.PaginatedResult[api.SystemLog], error) {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	var out api.PaginatedResult[api.SystemLog]
	err := c.do(ctx, http.MethodGet, "/api/v1/system/displays/systemLog", q, nil, &out)
	return out, err
}

func (c *Client) ListJobLogs(ctx context.Context, jobID *api.JobID, skip, pageSize int) (api.PaginatedResult[api.JobLog], error) {
	q := url.Values{}
	if jobID != nil {
		q.Set("jobId", jobID.String())
	}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	var out api.PaginatedResult[api.JobLog]
	err := c.do(ctx, http.MethodGet, "/api/v1/system/displays/jobLog", q, nil, &out)
	return out, err
}
