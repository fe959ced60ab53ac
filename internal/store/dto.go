package store

import (
	"encoding/json"
	"time"

	"github.com/volatiletech/null"
)

// DispatchJob is the dispatch_queue row / response DTO. Nullable columns
// use volatiletech/null rather than database/sql's NullXxx types, so JSON
// marshaling renders a bare `null` instead of the {Int32, Valid} struct
// shape.
type DispatchJob struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"-"`
	Status     string          `json:"status"`
	DispatchID null.Int        `json:"dispatch_id"`
	Error      null.String     `json:"error"`
	CreatedAt  time.Time       `json:"created_at"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// RmbPostJob is the rmbpost_queue row / response DTO.
type RmbPostJob struct {
	ID         int64       `json:"id"`
	Nation     string      `json:"nation"`
	Region     string      `json:"region"`
	Content    string      `json:"-"`
	Status     string      `json:"status"`
	RmbPostID  null.Int    `json:"rmbpost_id"`
	Error      null.String `json:"error"`
	CreatedAt  time.Time   `json:"created_at"`
	ModifiedAt time.Time   `json:"modified_at"`
}

// DispatchAction is the dispatch_queue.type enumeration.
type DispatchAction string

const (
	DispatchAdd    DispatchAction = "add"
	DispatchEdit   DispatchAction = "edit"
	DispatchRemove DispatchAction = "remove"
)

// Job status values shared by the queue tables.
const (
	StatusQueued  = "queued"
	StatusSuccess = "success"
	StatusFailure = "failure" // dispatch_queue terminal failure
	StatusError   = "error"   // rmbpost_queue terminal failure
)

// AddPayload/EditPayload/RemovePayload are the opaque JSON shapes stored
// in dispatch_queue.payload for add/edit/remove jobs. The dispatch_id
// column (DispatchJob.DispatchID) is not set at insert time; it is filled
// in only when a job succeeds.
type AddPayload struct {
	Nation      string `json:"nation"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Category    int16  `json:"category"`
	Subcategory int16  `json:"subcategory"`
}

type EditPayload struct {
	Nation      string `json:"nation"`
	DispatchID  int32  `json:"dispatch_id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Category    int16  `json:"category"`
	Subcategory int16  `json:"subcategory"`
}

type RemovePayload struct {
	Nation     string `json:"nation"`
	DispatchID int32  `json:"dispatch_id"`
}
