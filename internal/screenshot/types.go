// Package screenshot defines core types shared across subsystems.
package screenshot

import "time"

// Tool is one entry of the remote analysis-tools catalog.
// Only Homepage, Source, Pricing and Resources drive capture; the rest is passed through.
type Tool struct {
	Name        string     `json:"name"`
	Categories  []string   `json:"categories"`
	Languages   []string   `json:"languages"`
	Other       []string   `json:"other"`
	Licenses    []string   `json:"licenses"`
	Types       []string   `json:"types"`
	Homepage    string     `json:"homepage"`
	Source      *string    `json:"source"`
	Pricing     *string    `json:"pricing"`
	Plans       *PricePlan `json:"plans"`
	Description *string    `json:"description"`
	Discussion  *string    `json:"discussion"`
	Deprecated  *bool      `json:"deprecated"`
	Resources   []Resource `json:"resources"`
	Wrapper     *string    `json:"wrapper"`
	Votes       int        `json:"votes"`
	UpVotes     *int       `json:"upVotes,omitempty"`
	DownVotes   *int       `json:"downVotes,omitempty"`
}

// PricePlan flags the pricing tiers a tool offers.
type PricePlan struct {
	Free bool `json:"free"`
	OSS  bool `json:"oss"`
}

// Resource is an additional link (talk, article, video) listed for a tool.
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Catalog maps tool name to Tool.
type Catalog map[string]Tool

// Record pairs a screenshot location with the URL it was captured from.
// Path is the public CDN URL of the uploaded screenshot.
type Record struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Summary reports what a single synchronization run did.
type Summary struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ManifestPath  string    `json:"manifest_path"`
	Tools         int       `json:"tools"`
	Captured      int       `json:"captured"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Uploaded      int       `json:"uploaded"`
	UploadFailed  int       `json:"upload_failed"`
	ToolsSkipped  int       `json:"tools_skipped"`
	RecordsMerged int       `json:"records_merged"`
}

// Add folds the counters of another summary into s.
func (s *Summary) Add(other Summary) {
	s.Captured += other.Captured
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Uploaded += other.Uploaded
	s.UploadFailed += other.UploadFailed
	s.ToolsSkipped += other.ToolsSkipped
}
