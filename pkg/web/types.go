// Package web provides HTTP request and response types for the automation API.
package web

import "github.com/dukex/leadflow/pkg/models"

// EnterRequest represents the request body sent by the board when a lead's column change is confirmed.
type EnterRequest struct {
	Lead           *models.Lead      `json:"lead"                       validate:"-"`
	ColumnID       string            `json:"column_id"                  validate:"required"`
	SourceColumnID string            `json:"source_column_id,omitempty"`
	StartActionID  string            `json:"start_action_id,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}

// ResolvePauseRequest represents the operator's answer to a paused manual step.
type ResolvePauseRequest struct {
	Decision models.Decision     `json:"decision" validate:"required,oneof=execute ignore"`
	Resume   models.ResumeTarget `json:"resume"`
}

// CandidateResponse is one action the operator may start an automation from.
type CandidateResponse struct {
	ID   string            `json:"id"`
	Name string            `json:"name,omitempty"`
	Type models.ActionType `json:"type"`
}

// StartChoiceResponse is returned with 409 when the board must ask where to start.
type StartChoiceResponse struct {
	AutomationID string              `json:"automation_id"`
	Candidates   []CandidateResponse `json:"candidates"`
}

// CurrentActionResponse reports where a lead's run is.
type CurrentActionResponse struct {
	LeadID   string `json:"lead_id"`
	ActionID string `json:"action_id,omitempty"`
	Idle     bool   `json:"idle"`
}

// TransformCandidates builds the candidate list shown in the start prompt.
func TransformCandidates(automationID string, actions []*models.Action) StartChoiceResponse {
	response := StartChoiceResponse{
		AutomationID: automationID,
		Candidates:   make([]CandidateResponse, 0, len(actions)),
	}

	for _, action := range actions {
		response.Candidates = append(response.Candidates, CandidateResponse{
			ID:   action.ID,
			Name: action.Name,
			Type: action.Type,
		})
	}

	return response
}
