package xnat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mepipe/internal/services"
)

// HTTPDoer describes the HTTP client used by the XNAT service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a thin typed wrapper over the XNAT REST hierarchy:
// projects → subjects → experiments → scans → resources → files.
type Client struct {
	baseURL  string
	username string
	password string
	http     HTTPDoer
}

// New constructs an XNAT client. baseURL is the server root including any
// deployment path, e.g. "http://host:8080/xnat".
func New(baseURL, username, password string, client HTTPDoer) *Client {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username: username,
		password: password,
		http:     client,
	}
}

// Subjects lists the subjects of a project.
func (c *Client) Subjects(ctx context.Context, project string) ([]Subject, error) {
	var out []Subject
	path := fmt.Sprintf("/data/projects/%s/subjects", url.PathEscape(project))
	if err := c.list(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list subjects of %s: %w", project, err)
	}
	return out, nil
}

// Experiments lists the imaging sessions of a subject.
func (c *Client) Experiments(ctx context.Context, project, subject string) ([]Experiment, error) {
	var out []Experiment
	path := fmt.Sprintf("/data/projects/%s/subjects/%s/experiments",
		url.PathEscape(project), url.PathEscape(subject))
	if err := c.list(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list experiments of %s: %w", subject, err)
	}
	return out, nil
}

// Scans lists the scans of an experiment.
func (c *Client) Scans(ctx context.Context, project, subject, experiment string) ([]Scan, error) {
	var out []Scan
	path := fmt.Sprintf("/data/projects/%s/subjects/%s/experiments/%s/scans",
		url.PathEscape(project), url.PathEscape(subject), url.PathEscape(experiment))
	if err := c.list(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list scans of %s: %w", experiment, err)
	}
	return out, nil
}

// ScanResources lists the resource collections attached to a scan.
func (c *Client) ScanResources(ctx context.Context, project, subject, experiment, scanID string) ([]Resource, error) {
	var out []Resource
	path := c.scanPath(project, subject, experiment, scanID) + "/resources"
	if err := c.list(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list resources of scan %s: %w", scanID, err)
	}
	return out, nil
}

// ScanResourceFiles lists the files inside one scan resource.
func (c *Client) ScanResourceFiles(ctx context.Context, project, subject, experiment, scanID, label string) ([]File, error) {
	var out []File
	path := c.scanPath(project, subject, experiment, scanID) + "/resources/" + url.PathEscape(label) + "/files"
	if err := c.list(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list files of scan %s resource %s: %w", scanID, label, err)
	}
	return out, nil
}

// ExperimentResourceFiles lists the files of an experiment-level resource,
// e.g. the auxiliary-files collection.
func (c *Client) ExperimentResourceFiles(ctx context.Context, project, subject, experiment, label string) ([]File, error) {
	var out []File
	path := fmt.Sprintf("/data/projects/%s/subjects/%s/experiments/%s/resources/%s/files",
		url.PathEscape(project), url.PathEscape(subject), url.PathEscape(experiment), url.PathEscape(label))
	if err := c.list(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list files of resource %s: %w", label, err)
	}
	return out, nil
}

// DownloadScanZip streams a whole scan resource as a zip archive to destPath.
func (c *Client) DownloadScanZip(ctx context.Context, project, subject, experiment, scanID, label, destPath string) error {
	path := c.scanPath(project, subject, experiment, scanID) + "/resources/" + url.PathEscape(label) + "/files"
	if err := c.download(ctx, path+"?format=zip", destPath); err != nil {
		return fmt.Errorf("download scan %s resource %s: %w", scanID, label, err)
	}
	return nil
}

// DownloadFile fetches a single file by the URI the server returned in a file
// listing.
func (c *Client) DownloadFile(ctx context.Context, uri, destPath string) error {
	if err := c.download(ctx, uri, destPath); err != nil {
		return fmt.Errorf("download %s: %w", filepath.Base(destPath), err)
	}
	return nil
}

// UploadScanFile PUTs one file into a scan resource, creating the resource on
// first use. XNAT replaces an existing file of the same name.
func (c *Client) UploadScanFile(ctx context.Context, project, subject, experiment, scanID, label, name string, body io.Reader) error {
	path := c.scanPath(project, subject, experiment, scanID) +
		"/resources/" + url.PathEscape(label) + "/files/" + url.PathEscape(name) + "?inbody=true"

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "xnat", "upload", name, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (c *Client) scanPath(project, subject, experiment, scanID string) string {
	return fmt.Sprintf("/data/projects/%s/subjects/%s/experiments/%s/scans/%s",
		url.PathEscape(project), url.PathEscape(subject), url.PathEscape(experiment), url.PathEscape(scanID))
}

// list fetches a JSON ResultSet listing and decodes the Result rows into out.
func (c *Client) list(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?format=json", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "xnat", "list", path, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}

	var envelope struct {
		ResultSet struct {
			Result json.RawMessage `json:"Result"`
		} `json:"ResultSet"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode listing: %w", err)
	}
	if len(envelope.ResultSet.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.ResultSet.Result, out); err != nil {
		return fmt.Errorf("decode result rows: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, path, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "xnat", "download", path, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(dest, resp.Body); err != nil {
		dest.Close()
		_ = os.Remove(destPath)
		return fmt.Errorf("write destination: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		path := ""
		if resp.Request != nil && resp.Request.URL != nil {
			path = resp.Request.URL.Path
		}
		return services.Wrap(services.ErrNotFound, "xnat", "", path, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "xnat", "",
			fmt.Sprintf("server returned %d, check credentials", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrTransient, "xnat", "",
			fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}
}
