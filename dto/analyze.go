package dto

import "time"

// Verdict is the structured outcome of analyzing one piece of content.
// It is never mutated after creation; a re-analysis produces a new Verdict.
type Verdict struct {
	IsSafe     bool      `json:"isSafe"`
	Confidence int       `json:"confidence"`
	Category   string    `json:"category"`
	Threats    []string  `json:"threats"`
	Analysis   string    `json:"analysis"`
	Timestamp  time.Time `json:"timestamp"`
}

type AnalyzeRequest struct {
	Content  string   `json:"content" validate:"required"`
	Category string   `json:"category,omitempty" validate:"omitempty,max=100"`
	Files    []string `json:"files,omitempty" validate:"omitempty,max=10"`
}

func (r AnalyzeRequest) Validate() error {
	return GetValidator().Struct(r)
}

// AnalysisResult is a Verdict annotated with where it came from.
type AnalysisResult struct {
	Verdict

	Cached        bool   `json:"cached"`
	Source        string `json:"source"`
	CacheAgeSecs  int64  `json:"cache_age,omitempty"`
	SimilarCount  int64  `json:"similar_reports,omitempty"`
	ReportPrompt  string `json:"report_prompt,omitempty"`
	DegradedModel bool   `json:"degraded,omitempty"`
}

type BatchAnalyzeRequest struct {
	Batch []BatchRequestItem `json:"batch" validate:"required,min=1,dive"`
}

func (r BatchAnalyzeRequest) Validate() error {
	return GetValidator().Struct(r)
}

type BatchRequestItem struct {
	Type     string `json:"type,omitempty" validate:"omitempty,oneof=text file"`
	Content  string `json:"content" validate:"required"`
	Category string `json:"category,omitempty" validate:"omitempty,max=100"`
}

// BatchItemStatus is the observable mid-run state of one batch item.
type BatchItemStatus struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Result   *AnalysisResult `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type BatchAnalyzeResponse struct {
	Results []BatchItemStatus `json:"results"`
}

type SubmitReportRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required,max=10000"`
	Category    string `json:"category" validate:"required,max=100"`
	Location    string `json:"location,omitempty" validate:"omitempty,max=255"`
	Contact     string `json:"contact,omitempty" validate:"omitempty,max=255"`
}

func (r SubmitReportRequest) Validate() error {
	return GetValidator().Struct(r)
}

type SubmitReportResponse struct {
	ReportID string `json:"reportId"`
	Message  string `json:"message"`
}

type TrendingScam struct {
	Category    string    `json:"category"`
	ReportCount int64     `json:"report_count"`
	LastSeen    time.Time `json:"last_seen"`
}

type TrendingResponse struct {
	Scams       []TrendingScam `json:"scams"`
	GeneratedAt time.Time      `json:"generated_at"`
}
