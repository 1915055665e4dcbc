package runflow

const (
	WorkflowName = "course_generation_run"
	ActivityTick = "course_generation_run_tick"
)

// TickResult is what one activity execution reports back to the workflow.
type TickResult struct {
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress,omitempty"`
}
