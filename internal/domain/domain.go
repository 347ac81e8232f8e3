package domain

import (
	"strings"
	"time"
)

// ParcelState is the shipping stage a parcel currently sits in.
type ParcelState string

const (
	StateReceived               ParcelState = "Received"
	StateInTransitDomesticA     ParcelState = "InTransitDomesticA"
	StateInTransitDomesticB     ParcelState = "InTransitDomesticB"
	StateInTransitInternational ParcelState = "InTransitInternational"
	StateInWarehouseA           ParcelState = "InWarehouseA"
	StateInWarehouseB           ParcelState = "InWarehouseB"
)

// ParcelStates lists every state in canonical progression order.
var ParcelStates = []ParcelState{
	StateReceived,
	StateInTransitDomesticA,
	StateInTransitDomesticB,
	StateInTransitInternational,
	StateInWarehouseA,
	StateInWarehouseB,
}

func (s ParcelState) Valid() bool {
	_, ok := stateStage[s]
	return ok
}

// ParseParcelState matches a state name exactly, ignoring surrounding space.
func ParseParcelState(raw string) (ParcelState, bool) {
	s := ParcelState(strings.TrimSpace(raw))
	return s, s.Valid()
}

// IssueStatus is the lifecycle status of an issue report.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "Open"
	IssueInProgress IssueStatus = "InProgress"
	IssueResolved   IssueStatus = "Resolved"
	IssueClosed     IssueStatus = "Closed"
	IssueRejected   IssueStatus = "Rejected"
)

var IssueStatuses = []IssueStatus{IssueOpen, IssueInProgress, IssueResolved, IssueClosed, IssueRejected}

func (s IssueStatus) Valid() bool {
	for _, v := range IssueStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ParseIssueStatus(raw string) (IssueStatus, bool) {
	s := IssueStatus(strings.TrimSpace(raw))
	return s, s.Valid()
}

// IssueID derives the issue identifier for a parcel.
func IssueID(parcelID string) string {
	return parcelID + "-IN"
}

// HistoryEvent is one append-only entry of a parcel or issue timeline.
// Any non-empty subset of the optional fields may be set.
type HistoryEvent struct {
	State       ParcelState `json:"state,omitempty"`
	Status      IssueStatus `json:"status,omitempty"`
	Comment     string      `json:"comment,omitempty"`
	Attachments []string    `json:"attachments,omitempty"`
	Timestamp   time.Time   `json:"timestamp" format:"date-time"`
}

// Empty reports whether the event carries no payload.
func (e HistoryEvent) Empty() bool {
	return e.State == "" && e.Status == "" && e.Comment == "" && len(e.Attachments) == 0
}

type Parcel struct {
	ID           string         `json:"id"`
	CurrentState ParcelState    `json:"current_state" enum:"Received,InTransitDomesticA,InTransitDomesticB,InTransitInternational,InWarehouseA,InWarehouseB"`
	History      []HistoryEvent `json:"history"`
	IssueCount   int            `json:"issue_count"`
	CreatedAt    time.Time      `json:"created_at" format:"date-time"`
	LastEventAt  time.Time      `json:"last_event_at" format:"date-time"`
}

type Attachment struct {
	URL          string    `json:"url"`
	OriginalName string    `json:"original_name"`
	AddedAt      time.Time `json:"added_at" format:"date-time"`
	Key          string    `json:"-"`
}

type Issue struct {
	ID          string         `json:"id"`
	ParcelID    string         `json:"parcel_id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Status      IssueStatus    `json:"status" enum:"Open,InProgress,Resolved,Closed,Rejected"`
	CreatedAt   time.Time      `json:"created_at" format:"date-time"`
	History     []HistoryEvent `json:"history"`
	Attachments []Attachment   `json:"attachments"`
}

type Container struct {
	ID        string    `json:"id"`
	Members   []string  `json:"member_parcel_ids"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}
