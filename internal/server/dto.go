package server

import (
	"parceltrack/internal/domain"
	"parceltrack/internal/engine"
)

// Request payloads

type ReceiveParcelRequest struct {
	ID string `json:"id" example:"PKG1"`
}

type StateRequest struct {
	State string `json:"state" example:"InTransitDomesticA"`
}

type IssueStatusRequest struct {
	Status string `json:"status" example:"Resolved"`
}

type IssueCommentRequest struct {
	Comment string `json:"comment" example:"carrier contacted"`
}

type ParcelIDsRequest struct {
	ParcelIDs []string `json:"parcel_ids"`
}

// Response payloads

type IDResponse struct {
	ID string `json:"id"`
}

type DeletedResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type IssueDetailsResponse struct {
	Items []engine.IssueDetails `json:"items"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type TransitionsResponse struct {
	Enforced    bool                 `json:"enforced"`
	States      []domain.ParcelState `json:"states"`
	Transitions map[string][]string  `json:"transitions"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
