// Package imagegen produces images for a turn, either through a remote
// generation API with a poll loop or, when no API key is configured, as
// placeholder files so the rest of the pipeline stays exercisable.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"atelier/pkg/logger"
)

// Options control one generation call. Zero values fall back to defaults.
type Options struct {
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Count      int    `json:"count,omitempty"`
	ProjectKey string `json:"project_key,omitempty"`
}

// Result lists produced image files relative to the image root, plus
// their serving URLs.
type Result struct {
	Files []string `json:"files"`
	URLs  []string `json:"urls"`
}

const (
	maxPromptLen = 1000
	maxCount     = 4
	pollInterval = 2 * time.Second
	pollTimeout  = 120 * time.Second
)

// allowedDims are the dimension pairs the backend accepts; requests clamp
// to the nearest.
var allowedDims = [][2]int{
	{512, 512}, {768, 768}, {1024, 1024}, {1024, 768}, {768, 1024},
}

type Generator struct {
	dir     string
	apiBase string
	apiKey  string
	client  *http.Client
}

func NewGenerator(dir, apiBase, apiKey string) (*Generator, error) {
	if dir == "" {
		return nil, fmt.Errorf("image dir not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Generator{
		dir:     dir,
		apiBase: strings.TrimRight(apiBase, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Dir returns the image root, used by the serving handler and retention.
func (g *Generator) Dir() string { return g.dir }

// ShortenPrompt truncates a prompt near the length cap, preferring a
// sentence boundary so the model sees complete thoughts.
func ShortenPrompt(p string) string {
	p = strings.TrimSpace(p)
	if len(p) <= maxPromptLen {
		return p
	}
	cut := p[:maxPromptLen]
	if i := strings.LastIndexAny(cut, ".!?"); i > maxPromptLen/2 {
		return strings.TrimSpace(cut[:i+1])
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return strings.TrimSpace(cut[:i])
	}
	return cut
}

// ClampDims snaps requested dimensions to the closest allowed pair.
func ClampDims(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return allowedDims[0][0], allowedDims[0][1]
	}
	best := allowedDims[0]
	bestDiff := -1
	for _, d := range allowedDims {
		diff := abs(d[0]-w) + abs(d[1]-h)
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = d, diff
		}
	}
	return best[0], best[1]
}

// ClampCount bounds the image quantity to 1..4.
func ClampCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxCount {
		return maxCount
	}
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Generate produces Count images for the prompt. Without an API key it
// writes placeholder PNGs instead of failing, so turns keep flowing in
// unconfigured environments.
func (g *Generator) Generate(ctx context.Context, prompt string, opts Options) (Result, error) {
	prompt = ShortenPrompt(prompt)
	opts = loadSettings(g.dir).applyDefaults(opts)
	w, h := ClampDims(opts.Width, opts.Height)
	count := ClampCount(opts.Count)

	subdir := ""
	if opts.ProjectKey != "" {
		subdir = sanitizeKey(opts.ProjectKey)
	}
	outDir := filepath.Join(g.dir, subdir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	if g.apiKey == "" || g.apiBase == "" {
		return g.placeholders(outDir, subdir, count)
	}
	return g.remote(ctx, prompt, w, h, count, outDir, subdir)
}

func (g *Generator) placeholders(outDir, subdir string, count int) (Result, error) {
	logger.Warn("imagegen_unconfigured_placeholder", "count", count)
	var res Result
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("img_%d_%02d.png", time.Now().UnixNano(), i)
		if err := os.WriteFile(filepath.Join(outDir, name), placeholderPNG, 0o644); err != nil {
			return res, err
		}
		res = res.add(subdir, name)
	}
	return res, nil
}

func (g *Generator) remote(ctx context.Context, prompt string, w, h, count int, outDir, subdir string) (Result, error) {
	body, _ := json.Marshal(map[string]any{
		"prompt": prompt,
		"width":  w,
		"height": h,
		"count":  count,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return Result{}, fmt.Errorf("image API status %d", resp.StatusCode)
	}
	var job struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return Result{}, err
	}

	urls, err := g.poll(ctx, job.JobID)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for i, u := range urls {
		name := fmt.Sprintf("img_%d_%02d.png", time.Now().UnixNano(), i)
		if err := g.download(ctx, u, filepath.Join(outDir, name)); err != nil {
			return res, err
		}
		res = res.add(subdir, name)
	}
	return res, nil
}

func (g *Generator) poll(ctx context.Context, jobID string) ([]string, error) {
	deadline := time.Now().Add(pollTimeout)
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("image job %s timed out", jobID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+"/jobs/"+jobID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		var status struct {
			Status string   `json:"status"`
			URLs   []string `json:"urls"`
			Error  string   `json:"error"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "done":
			return status.URLs, nil
		case "failed":
			return nil, fmt.Errorf("image job failed: %s", status.Error)
		}
	}
}

func (g *Generator) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download status %d", resp.StatusCode)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func (r Result) add(subdir, name string) Result {
	rel := name
	if subdir != "" {
		rel = subdir + "/" + name
	}
	r.Files = append(r.Files, rel)
	r.URLs = append(r.URLs, "/v1/images/"+rel)
	return r
}

func sanitizeKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// placeholderPNG is a 1x1 opaque gray pixel.
var placeholderPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
	0xde, 0x00, 0x00, 0x00, 0x0c, 0x49, 0x44, 0x41,
	0x54, 0x08, 0xd7, 0x63, 0x90, 0x90, 0x90, 0x04,
	0x00, 0x01, 0x33, 0x00, 0xb2, 0x8d, 0xb8, 0x94,
	0x1c, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
	0x44, 0xae, 0x42, 0x60, 0x82,
}
