package model

// ChangeEvent is a single entity mutation pushed to clients via the
// team event feed (SSE) so boards refresh without polling.
type ChangeEvent struct {
	Seq    int    `json:"seq"`
	Ts     string `json:"ts"`
	Entity string `json:"entity"` // EntityKey, e.g. "planner.tasks"
	Action string `json:"action"` // created | updated | deleted | reminder
	ID     int64  `json:"id"`
	Label  string `json:"label,omitempty"`
}
