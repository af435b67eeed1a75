package muset

import "time"

// NodeStatus tracks a learner's progress through one roadmap node.
type NodeStatus string

const (
	NodePending    NodeStatus = "pending"
	NodeInProgress NodeStatus = "in_progress"
	NodeCompleted  NodeStatus = "completed"
)

// Roadmap is an AI-generated personalized learning plan.
type Roadmap struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Topic     string        `json:"topic"`
	Title     string        `json:"title"`
	Nodes     []RoadmapNode `json:"nodes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RoadmapNode is one step of a roadmap.
type RoadmapNode struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Order       int        `json:"order"`
	Status      NodeStatus `json:"status"`
}

// GenerateRoadmapRequest asks the backend to generate a roadmap. The
// call returns immediately with a task id; generation progress is
// tracked through the task-status endpoint.
type GenerateRoadmapRequest struct {
	Topic string `json:"topic"`
	// Level is the learner's self-assessed starting level.
	Level string `json:"level,omitempty"`
	// Goal is free-form text describing what the learner wants to reach.
	Goal string `json:"goal,omitempty"`
}

// GenerateRoadmapResponse carries the id of the generation task.
type GenerateRoadmapResponse struct {
	TaskID string `json:"task_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type updateNodeStatusRequest struct {
	Status NodeStatus `json:"status"`
}
