package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPlanRequirementsRefresh recomputes requirement coverage for a
	// committed plan against current stock.
	TaskPlanRequirementsRefresh = "planning:requirements_refresh"
	// TaskPurchaseSuggestions derives purchase suggestions from outsourced
	// shortages on confirmed plans.
	TaskPurchaseSuggestions = "planning:purchase_suggestions"
)

// PlanPayload identifies the plan a task operates on.
type PlanPayload struct {
	PlanID int64 `json:"planId"`
}

// NewPlanRequirementsRefreshTask constructs a requirements refresh task.
func NewPlanRequirementsRefreshTask(planID int64) (*asynq.Task, error) {
	data, err := json.Marshal(PlanPayload{PlanID: planID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPlanRequirementsRefresh, data), nil
}

// NewPurchaseSuggestionsTask constructs a purchase suggestion task. A zero
// planID scans every confirmed plan.
func NewPurchaseSuggestionsTask(planID int64) (*asynq.Task, error) {
	data, err := json.Marshal(PlanPayload{PlanID: planID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurchaseSuggestions, data), nil
}
