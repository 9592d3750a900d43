package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	defaultFetchMaxChars    = 50000
	defaultFetchMaxRedirect = 3
	fetchTimeout            = 30 * time.Second
	fileReadMaxBytes        = 256 * 1024
)

// Builtins returns the standard tool set for CLI runs: HTTP fetch plus
// workspace-scoped file access.
func Builtins(workdir string) []Tool {
	return []Tool{
		NewHTTPFetchTool(),
		NewFileReadTool(workdir),
		NewFileWriteTool(workdir),
	}
}

// HTTPFetchTool fetches a URL and returns its content as text. HTML is
// reduced to plain text, JSON is pretty-printed. Targets on private or
// local addresses are refused, including across redirects.
type HTTPFetchTool struct {
	// allowPrivate disables the private-address guard so tests can fetch
	// from a local server.
	allowPrivate bool
}

func NewHTTPFetchTool() *HTTPFetchTool {
	return &HTTPFetchTool{}
}

func (t *HTTPFetchTool) Name() string { return "http_fetch" }

func (t *HTTPFetchTool) Description() string {
	return "Fetch an HTTP or HTTPS URL and return its content as text. HTML is stripped to plain text, JSON is pretty-printed."
}

func (t *HTTPFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
			},
			"max_chars": map[string]interface{}{
				"type":        "number",
				"description": "Maximum characters to return (truncates when exceeded).",
			},
		},
		"required": []string{"url"},
	}
}

func (t *HTTPFetchTool) Execute(ctx context.Context, args string) *Result {
	var params struct {
		URL      string `json:"url"`
		MaxChars int    `json:"max_chars"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	if params.URL == "" {
		return ErrorResult("url is required")
	}
	parsed, err := url.Parse(params.URL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult("only http and https URLs are supported")
	}
	if parsed.Host == "" {
		return ErrorResult("missing hostname in URL")
	}
	if !t.allowPrivate {
		if err := checkSSRF(parsed); err != nil {
			return ErrorResult(fmt.Sprintf("refusing to fetch: %v", err))
		}
	}

	maxChars := params.MaxChars
	if maxChars <= 0 {
		maxChars = defaultFetchMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	// The redirect budget is per fetch, so the client lives for one call.
	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > defaultFetchMaxRedirect {
				return fmt.Errorf("stopped after %d redirects", defaultFetchMaxRedirect)
			}
			if !t.allowPrivate {
				if err := checkSSRF(req.URL); err != nil {
					return fmt.Errorf("redirect refused: %w", err)
				}
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %v", err))
	}
	defer resp.Body.Close()

	// Read extra to leave room for HTML stripping.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars*4)))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read body: %v", err))
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	switch {
	case strings.Contains(contentType, "application/json"):
		text = prettyJSON(body)
	case strings.Contains(contentType, "text/html"):
		text = htmlToText(string(body))
	default:
		text = string(body)
	}

	if len(text) > maxChars {
		text = text[:maxChars] + "\n[truncated]"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nStatus: %d\n\n", resp.Request.URL, resp.StatusCode)
	sb.WriteString(text)
	return NewResult(sb.String())
}

func prettyJSON(body []byte) string {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	formatted, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(formatted)
}

var (
	reScript  = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle   = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reComment = regexp.MustCompile(`<!--[\s\S]*?-->`)
	reBreak   = regexp.MustCompile(`(?i)</(?:p|div|li|h[1-6]|tr)>|<br\s*/?>`)
	reTag     = regexp.MustCompile(`<[^>]+>`)
	reMultiSP = regexp.MustCompile(`[ \t]{2,}`)
)

// htmlToText strips markup and collapses whitespace. Not a full extractor,
// just enough for an agent to read page content.
func htmlToText(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")
	s = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	).Replace(s)
	s = reMultiSP.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	var clean []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

// FileReadTool reads a file inside the workspace directory.
type FileReadTool struct {
	workdir string
}

func NewFileReadTool(workdir string) *FileReadTool {
	return &FileReadTool{workdir: workdir}
}

func (t *FileReadTool) Name() string { return "file_read" }

func (t *FileReadTool) Description() string {
	return "Read a text file from the workspace. Paths are relative to the workspace root."
}

func (t *FileReadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path relative to the workspace root.",
			},
		},
		"required": []string{"path"},
	}
}

func (t *FileReadTool) Execute(ctx context.Context, args string) *Result {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	path, err := resolveWorkspacePath(t.workdir, params.Path)
	if err != nil {
		return ErrorResult(err.Error())
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("open: %v", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, fileReadMaxBytes+1))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read: %v", err))
	}
	if len(data) > fileReadMaxBytes {
		return ErrorResult(fmt.Sprintf("file exceeds %d bytes", fileReadMaxBytes))
	}
	return NewResult(string(data))
}

// FileWriteTool writes a file inside the workspace directory.
type FileWriteTool struct {
	workdir string
}

func NewFileWriteTool(workdir string) *FileWriteTool {
	return &FileWriteTool{workdir: workdir}
}

func (t *FileWriteTool) Name() string { return "file_write" }

func (t *FileWriteTool) Description() string {
	return "Write a text file in the workspace, creating parent directories as needed. Paths are relative to the workspace root."
}

func (t *FileWriteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path relative to the workspace root.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "File content to write.",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *FileWriteTool) Execute(ctx context.Context, args string) *Result {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	path, err := resolveWorkspacePath(t.workdir, params.Path)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("mkdir: %v", err))
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write: %v", err))
	}
	return NewResult(fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path))
}

// resolveWorkspacePath joins rel to workdir and rejects escapes above it.
func resolveWorkspacePath(workdir, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	abs := filepath.Join(workdir, filepath.Clean(rel))
	root := filepath.Clean(workdir) + string(filepath.Separator)
	if !strings.HasPrefix(abs+string(filepath.Separator), root) {
		return "", fmt.Errorf("path escapes the workspace")
	}
	return abs, nil
}
