package server

import (
	"erasure/internal/domain"
	"erasure/internal/vault"
)

type CreateProfileRequest struct {
	Label string            `json:"label,omitempty"`
	Data  vault.ProfileData `json:"data"`
}

type UpdateProfileRequest struct {
	Data vault.ProfileData `json:"data"`
}

// ProfileResponse exposes profile metadata only; the sealed payload never
// leaves the vault through the API.
type ProfileResponse struct {
	ProfileID string `json:"profile_id"`
	Label     string `json:"label"`
	DataHash  string `json:"data_hash"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func profileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{
		ProfileID: p.ProfileID,
		Label:     p.Label,
		DataHash:  p.DataHash,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func mapProfiles(in []domain.Profile) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(in))
	for _, p := range in {
		out = append(out, profileResponse(p))
	}
	return out
}

type StartRunRequest struct {
	PlanID         string         `json:"plan_id"`
	Params         map[string]any `json:"params,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type StartRunResponse struct {
	Run     domain.Run `json:"run"`
	Created bool       `json:"created"`
}

// RunDetailResponse is the full run view: the run row plus its tasks,
// approvals, and artifacts.
type RunDetailResponse struct {
	Run       domain.Run        `json:"run"`
	Tasks     []domain.TaskRun  `json:"tasks"`
	Approvals []domain.Approval `json:"approvals"`
	Artifacts []domain.Artifact `json:"artifacts"`
}

type ResolveApprovalRequest struct {
	Decision string `json:"decision" enum:"approve,deny"`
}

type TransitionListingRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type CompleteQueueItemRequest struct {
	Notes string `json:"notes,omitempty"`
}
