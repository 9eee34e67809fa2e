// Package domain holds the core types shared across the orchestrator:
// tasks, epics, agents, quota windows, routing patterns, and memory entries.
package domain

import "time"

// Provider identifies one of the four LLM coding backends a task can be
// routed to. It is a closed set, not an open string key, so an unhandled
// provider is a compile error, not a runtime surprise.
type Provider int

const (
	ProviderClaude Provider = iota
	ProviderGLM
	ProviderDeepSeek
	ProviderOpenRouter
)

func (p Provider) String() string {
	switch p {
	case ProviderClaude:
		return "claude"
	case ProviderGLM:
		return "glm"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderOpenRouter:
		return "openrouter"
	default:
		return "unknown"
	}
}

// ParseProvider maps a persisted/CLI string back to a Provider.
func ParseProvider(s string) (Provider, bool) {
	switch s {
	case "claude":
		return ProviderClaude, true
	case "glm":
		return ProviderGLM, true
	case "deepseek":
		return ProviderDeepSeek, true
	case "openrouter":
		return ProviderOpenRouter, true
	default:
		return 0, false
	}
}

// AllProviders lists every provider in cascade-preference order.
func AllProviders() []Provider {
	return []Provider{ProviderDeepSeek, ProviderGLM, ProviderOpenRouter, ProviderClaude}
}

// TaskStatus mirrors the issue tracker's lifecycle for a task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskClaimed  TaskStatus = "claimed"
	TaskActive   TaskStatus = "active"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "failed"
)

// EpicStatus mirrors the lifecycle of a decomposed epic.
type EpicStatus string

const (
	EpicActive   EpicStatus = "active"
	EpicComplete EpicStatus = "complete"
)

// FeatureVector is the small feature set the router and pattern learner hash
// tasks on. Complexity is 1..10; the boolean flags are derived from the
// task's declared tool/command shape.
type FeatureVector struct {
	Complexity    int    `json:"complexity"`
	ToolKind      string `json:"tool_kind"`
	IsWrite       bool   `json:"is_write"`
	IsRead        bool   `json:"is_read"`
	IsTestRelated bool   `json:"is_test_related"`
}

// Task is one unit of work claimed and executed by exactly one Agent.
type Task struct {
	ID          string
	Title       string
	Description string
	EpicID      string
	Complexity  int
	Provider    Provider
	Status      TaskStatus
	Features    FeatureVector
}

// Epic groups tasks produced from a single decomposition.
type Epic struct {
	ID            string
	Description   string
	TaskCount     int
	CompleteCount int
	Status        EpicStatus
}

// IsComplete reports whether the epic has tasks and all of them are done:
// TaskCount > 0 and CompleteCount >= TaskCount. It does not read Status.
func (e Epic) IsComplete() bool {
	return e.TaskCount > 0 && e.CompleteCount >= e.TaskCount
}

// Agent is a supervised child process executing exactly one Task.
type Agent struct {
	ID        string
	Provider  Provider
	TaskID    string
	SessionID string
	Heartbeat time.Time
}

// AgentState summarizes liveness as observed by the agent manager.
type AgentState string

const (
	AgentRunning   AgentState = "running"
	AgentStale     AgentState = "stale"
	AgentCompleted AgentState = "completed"
	AgentFailed    AgentState = "failed"
	AgentUnknown   AgentState = "unknown"
)

// RoutingPattern is the adaptive-routing record keyed by a feature hash.
type RoutingPattern struct {
	FeatureHash string
	Provider    Provider
	Attempts    int
	Successes   int
	LastUsed    time.Time
}

// SuccessRate returns Successes/Attempts, or 0 when there have been no attempts.
func (p RoutingPattern) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}

// ProviderStats aggregates outcomes for a provider, optionally scoped to a
// single complexity bucket.
type ProviderStats struct {
	Provider        Provider
	Complexity      int // 0 means "all complexities"
	TotalTasks      int
	SuccessfulTasks int
}

// SuccessRate returns SuccessfulTasks/TotalTasks, or 0 when TotalTasks is 0.
func (s ProviderStats) SuccessRate() float64 {
	if s.TotalTasks == 0 {
		return 0
	}
	return float64(s.SuccessfulTasks) / float64(s.TotalTasks)
}

// MemoryPatternType classifies a recorded command for recent/semantic recall.
type MemoryPatternType string

const (
	PatternBugfix   MemoryPatternType = "bugfix"
	PatternTest     MemoryPatternType = "test"
	PatternRefactor MemoryPatternType = "refactor"
	PatternFeature  MemoryPatternType = "feature"
	PatternSetup    MemoryPatternType = "setup"
	PatternGeneral  MemoryPatternType = "general"
)

// MemoryEntry is one short-term (recent) or indexed (semantic) memory record.
type MemoryEntry struct {
	PatternType     MemoryPatternType `json:"pattern_type"`
	Tool            string            `json:"tool"`
	CommandSnippet  string            `json:"command_snippet"`
	OriginalCommand string            `json:"original_command,omitempty"`
	TaskID          string            `json:"task_id"`
	Provider        Provider          `json:"-"`
	ProviderName    string            `json:"provider"`
	Timestamp       time.Time         `json:"timestamp"`
	Success         bool              `json:"success"`
}

// VerificationStatus is the lifecycle of a verification slot.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationComplete VerificationStatus = "complete"
	VerificationExpired  VerificationStatus = "expired"
)

// VerificationSlot records a pending or completed verification pass for a task.
type VerificationSlot struct {
	TaskID      string
	Provider    Provider
	Complexity  int
	Status      VerificationStatus
	Result      string
	Confidence  float64
	CreatedAt   time.Time
	CompletedAt time.Time
}
