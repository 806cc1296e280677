// Dropbox HTTP API v2 implementation of [Storage]
//
// See https://www.dropbox.com/developers/documentation/http/documentation
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	dropboxAPIURL     = "https://api.dropboxapi.com/2"
	dropboxContentURL = "https://content.dropboxapi.com/2"
)

// DropboxOpts configures a [DropboxStorage].
type DropboxOpts struct {
	HTTPClient *http.Client // must attach credentials, see [NewHTTPClient]
	APIURL     string       // defaults to the public RPC endpoint
	ContentURL string       // defaults to the public content endpoint
	Limiter    *rate.Limiter
	Retry      RetryPolicy
	Logger     *log.Logger
}

// DropboxStorage reads and writes snapshot files in the user's Dropbox.
type DropboxStorage struct {
	httpClient *http.Client
	apiURL     string
	contentURL string
	caller     *Caller
	logger     *log.Logger
}

// NewDropboxStorage creates a [DropboxStorage].
func NewDropboxStorage(opts DropboxOpts) *DropboxStorage {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.With("service", "dropbox")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	apiURL := strings.TrimSuffix(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = dropboxAPIURL
	}
	contentURL := strings.TrimSuffix(opts.ContentURL, "/")
	if contentURL == "" {
		contentURL = dropboxContentURL
	}

	return &DropboxStorage{
		httpClient: httpClient,
		apiURL:     apiURL,
		contentURL: contentURL,
		caller:     NewCaller(opts.Limiter, opts.Retry, logger),
		logger:     logger,
	}
}

type dropboxError struct {
	ErrorSummary string `json:"error_summary"`
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

type pathArg struct {
	Path string `json:"path"`
}

type createFolderArg struct {
	Path       string `json:"path"`
	Autorename bool   `json:"autorename"`
}

type listFolderArg struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type listFolderContinueArg struct {
	Cursor string `json:"cursor"`
}

type listFolderEntry struct {
	Tag            string    `json:".tag"`
	PathDisplay    string    `json:"path_display"`
	ServerModified time.Time `json:"server_modified"`
}

type listFolderResult struct {
	Entries []listFolderEntry `json:"entries"`
	Cursor  string            `json:"cursor"`
	HasMore bool              `json:"has_more"`
}

type accountResult struct {
	Email string `json:"email"`
	Name  struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
}

// Upload writes content to path in overwrite mode.
func (d *DropboxStorage) Upload(ctx context.Context, content, path string) error {
	arg := uploadArg{Path: path, Mode: "overwrite", Mute: true}
	err := d.caller.Do(ctx, "upload", func(ctx context.Context) error {
		_, err := d.content(ctx, "/files/upload", arg, []byte(content))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}

	d.logger.Debug("uploaded file", "path", path, "bytes", len(content))
	return nil
}

// Download returns the file at path. A missing file reports found=false without an error.
func (d *DropboxStorage) Download(ctx context.Context, path string) (string, bool, error) {
	var data []byte
	err := d.caller.Do(ctx, "download", func(ctx context.Context) error {
		var err error
		data, err = d.content(ctx, "/files/download", pathArg{Path: path}, nil)
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to download %s: %w", path, err)
	}
	return string(data), true, nil
}

// EnsureFolder creates path, treating an existing folder as success. The root always exists.
func (d *DropboxStorage) EnsureFolder(ctx context.Context, path string) error {
	if path == "" || path == "/" {
		return nil
	}

	err := d.caller.Do(ctx, "create_folder", func(ctx context.Context) error {
		return d.rpc(ctx, "/files/create_folder_v2", createFolderArg{Path: path}, nil)
	})
	if err != nil {
		if IsConflict(err) {
			d.logger.Debug("folder already exists", "path", path)
			return nil
		}
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}

	d.logger.Debug("created folder", "path", path)
	return nil
}

// ListWithMetadata lists files directly inside folder. Subfolders are skipped and a missing
// folder is reported as empty.
func (d *DropboxStorage) ListWithMetadata(ctx context.Context, folder string) ([]FileInfo, error) {
	if folder == "/" {
		folder = ""
	}

	var page listFolderResult
	err := d.caller.Do(ctx, "list_folder", func(ctx context.Context) error {
		return d.rpc(ctx, "/files/list_folder", listFolderArg{Path: folder}, &page)
	})
	if err != nil {
		if IsNotFound(err) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	files := collectFiles(nil, page.Entries)
	for page.HasMore {
		cursor := page.Cursor
		page = listFolderResult{}
		err := d.caller.Do(ctx, "list_folder_continue", func(ctx context.Context) error {
			return d.rpc(ctx, "/files/list_folder/continue", listFolderContinueArg{Cursor: cursor}, &page)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to continue listing %s: %w", folder, err)
		}
		files = collectFiles(files, page.Entries)
	}

	return files, nil
}

// CurrentAccount returns the display name of the linked account.
func (d *DropboxStorage) CurrentAccount(ctx context.Context) (string, error) {
	var account accountResult
	err := d.caller.Do(ctx, "get_current_account", func(ctx context.Context) error {
		return d.rpc(ctx, "/users/get_current_account", nil, &account)
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch dropbox account: %w", err)
	}

	if account.Name.DisplayName != "" {
		return account.Name.DisplayName, nil
	}
	return account.Email, nil
}

func collectFiles(files []FileInfo, entries []listFolderEntry) []FileInfo {
	for _, e := range entries {
		if e.Tag != "file" {
			continue
		}
		files = append(files, FileInfo{Path: e.PathDisplay, Modified: e.ServerModified})
	}
	return files
}

// rpc calls an RPC-style endpoint with a JSON body. A nil arg sends "null" as the endpoint
// expects for argument-less calls.
func (d *DropboxStorage) rpc(ctx context.Context, endpoint string, arg any, result any) error {
	body := []byte("null")
	if arg != nil {
		var err error
		if body, err = json.Marshal(arg); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := d.doRequest(req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// content calls a content-upload or content-download endpoint. Arguments travel in the
// Dropbox-API-Arg header and the payload is the raw body.
func (d *DropboxStorage) content(ctx context.Context, endpoint string, arg any, body []byte) ([]byte, error) {
	header, err := apiArgHeader(arg)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Dropbox-API-Arg", header)
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	return d.doRequest(req)
}

// doRequest sends req and classifies non-2xx responses.
func (d *DropboxStorage) doRequest(req *http.Request) ([]byte, error) {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Kind: KindTransient, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyDropbox(resp.StatusCode, resp.Header, data)
	}
	return data, nil
}

// classifyDropbox maps an error response to a [*RemoteError]. Endpoint errors arrive as 409 with
// an error_summary such as "path/not_found/..".
func classifyDropbox(status int, header http.Header, body []byte) *RemoteError {
	var derr dropboxError
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &derr) == nil && derr.ErrorSummary != "" {
		message = derr.ErrorSummary
	}

	re := ClassifyStatus(status, header, message)
	if status == http.StatusConflict {
		switch {
		case strings.Contains(derr.ErrorSummary, "not_found"):
			re.Kind = KindNotFound
		case strings.Contains(derr.ErrorSummary, "conflict"):
			re.Kind = KindConflict
		default:
			re.Kind = KindPermanent
		}
	}
	return re
}

// apiArgHeader encodes arg as JSON for the Dropbox-API-Arg header. HTTP headers must be ASCII,
// so every non-ASCII rune is written as a \uXXXX escape.
func apiArgHeader(arg any) (string, error) {
	raw, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("failed to encode Dropbox-API-Arg: %w", err)
	}

	var b strings.Builder
	for _, r := range string(raw) {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		for _, u := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&b, `\u%04x`, u)
		}
	}
	return b.String(), nil
}
