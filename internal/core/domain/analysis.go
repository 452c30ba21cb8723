package domain

import "time"

type TaskType string

const (
	TaskTakeoff        TaskType = "takeoff"
	TaskQuality        TaskType = "quality"
	TaskBidAnalysis    TaskType = "bid_analysis"
	TaskCodeCompliance TaskType = "code_compliance"
	TaskCostEstimation TaskType = "cost_estimation"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTakeoff, TaskQuality, TaskBidAnalysis, TaskCodeCompliance, TaskCostEstimation:
		return true
	}
	return false
}

// EncodedImage is a base64-encoded page image sent inline to model providers.
type EncodedImage struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type AnalysisTask struct {
	TaskType     TaskType       `json:"task_type"`
	SystemPrompt string         `json:"system_prompt"`
	UserPrompt   string         `json:"user_prompt"`
	Images       []EncodedImage `json:"images,omitempty"`
}

// CallOptions shape one provider call.
type CallOptions struct {
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// ModelResult is one provider's raw response. It is folded into a
// ConsensusResult and never persisted on its own.
type ModelResult struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Content      string   `json:"content"`
	FinishReason string   `json:"finish_reason,omitempty"`
	TokensUsed   int      `json:"tokens_used,omitempty"`
	Confidence   float64  `json:"confidence"`
	TaskType     TaskType `json:"task_type"`
}

// LineItem is one material/quantity finding merged from model output.
type LineItem struct {
	Category    string  `json:"category"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	Confidence  float64 `json:"confidence"`
	AIProvider  string  `json:"ai_provider"`
	Notes       string  `json:"notes,omitempty"`
}

// Issue is one defect/compliance finding; produced for quality tasks.
type Issue struct {
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Location    string  `json:"location,omitempty"`
	Confidence  float64 `json:"confidence"`
	AIProvider  string  `json:"ai_provider"`
	Notes       string  `json:"notes,omitempty"`
}

type ModelAgreement struct {
	Model      string  `json:"model"`
	ItemsFound int     `json:"items_found"`
	Confidence float64 `json:"confidence"`
}

// ConsensusResult is the merged outcome of one multi-model analysis.
// ConsensusCount equals the number of model results that parsed and
// contributed to the merge.
type ConsensusResult struct {
	Items           []LineItem       `json:"items"`
	Issues          []Issue          `json:"issues,omitempty"`
	Confidence      float64          `json:"confidence"`
	ConsensusCount  int              `json:"consensus_count"`
	Disagreements   []string         `json:"disagreements"`
	ModelAgreements []ModelAgreement `json:"model_agreements"`
}
