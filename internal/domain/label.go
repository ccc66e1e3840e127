package domain

import "time"

// Action records why a Version was appended.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Label is the durable identity of a product label. Content is the denormalized copy
// of the latest written content; the authoritative history lives in Versions.
type Label struct {
	ID               int64     `json:"id"`
	CurrentVersionID *int64    `json:"current_version_id"`
	Content          Content   `json:"content"`
	Metadata         Metadata  `json:"metadata"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Metadata holds the fields that may change without creating a Version.
type Metadata struct {
	Tags                  []string `json:"tags"`
	InternalNotes         *string  `json:"internal_notes"`
	WorkflowStatus        *string  `json:"workflow_status"`
	TrackingNumber        *string  `json:"tracking_number"`
	ExternalApplicationID *string  `json:"external_application_id"`
}

// MetadataPatch is a partial Metadata update. Nil fields are left unchanged.
type MetadataPatch struct {
	Tags                  *[]string `json:"tags"`
	InternalNotes         *string   `json:"internal_notes"`
	WorkflowStatus        *string   `json:"workflow_status"`
	TrackingNumber        *string   `json:"tracking_number"`
	ExternalApplicationID *string   `json:"external_application_id"`
}

// Empty reports whether the patch carries no fields.
func (p MetadataPatch) Empty() bool {
	return p.Tags == nil && p.InternalNotes == nil && p.WorkflowStatus == nil &&
		p.TrackingNumber == nil && p.ExternalApplicationID == nil
}

// Apply returns m with the patch applied.
func (m Metadata) Apply(p MetadataPatch) Metadata {
	out := m
	if p.Tags != nil {
		out.Tags = append([]string(nil), (*p.Tags)...)
	}
	out.InternalNotes = pick(p.InternalNotes, m.InternalNotes)
	out.WorkflowStatus = pick(p.WorkflowStatus, m.WorkflowStatus)
	out.TrackingNumber = pick(p.TrackingNumber, m.TrackingNumber)
	out.ExternalApplicationID = pick(p.ExternalApplicationID, m.ExternalApplicationID)
	return out
}

// Version is an append-only snapshot of label content. Only the status mirror
// (and content while Editable) may change after creation.
type Version struct {
	ID                    int64       `json:"id"`
	LabelID               int64       `json:"label_id"`
	Action                Action      `json:"action"`
	Content               Content     `json:"content"`
	CreatedAt             time.Time   `json:"created_at"`
	Status                *StatusCode `json:"status"`
	ExternalApplicationID *string     `json:"external_application_id"`
	StatusChangedAt       *time.Time  `json:"status_changed_at"`
}

// Editable reports whether content may still be changed in place.
func (v Version) Editable() bool {
	return v.Status == nil || *v.Status == StatusPreparing
}

// Snapshot is a Label joined with its current Version.
type Snapshot struct {
	Label          Label    `json:"label"`
	CurrentVersion *Version `json:"current_version"`
}

// Draft is the single mutable scratch record of a Label.
type Draft struct {
	LabelID   int64     `json:"label_id"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
