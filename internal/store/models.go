package store

import (
	"time"

	"teamworks/api/internal/ids"
)

const (
	StatusToDo       = "To Do"
	StatusInProgress = "In Progress"
	StatusDone       = "Done"

	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

type User struct {
	ID           ids.ID    `bson:"_id"`
	FullName     string    `bson:"fullName"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type Project struct {
	ID          ids.ID    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	OwnerID     ids.ID    `bson:"ownerId"`
	MemberIDs   []ids.ID  `bson:"memberIds"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// HasMember reports whether the user owns or belongs to the project.
func (p Project) HasMember(userID ids.ID) bool {
	return p.OwnerID == userID || ids.Contains(p.MemberIDs, userID)
}

// Task is a backlog item. Dependencies hold ids of tasks in the same project.
type Task struct {
	ID           ids.ID    `bson:"_id"`
	ProjectID    ids.ID    `bson:"projectId"`
	Title        string    `bson:"title"`
	Description  string    `bson:"description"`
	Status       string    `bson:"status"`
	Priority     string    `bson:"priority"`
	AssignedTo   *ids.ID   `bson:"assignedTo"`
	StartDate    string    `bson:"startDate"`
	DueDate      string    `bson:"dueDate"`
	Progress     float64   `bson:"progress"`
	Dependencies []ids.ID  `bson:"dependencies"`
	CreatedBy    ids.ID    `bson:"createdBy"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// TaskFilter narrows ListTasks. Zero values mean no constraint.
type TaskFilter struct {
	Status     string
	Priority   string
	AssignedTo *ids.ID
	Unassigned bool
}

type Comment struct {
	ID         ids.ID    `bson:"_id"`
	TaskID     ids.ID    `bson:"taskId"`
	ProjectID  ids.ID    `bson:"projectId"`
	AuthorID   ids.ID    `bson:"authorId"`
	AuthorName string    `bson:"author"`
	Body       string    `bson:"text"`
	CreatedAt  time.Time `bson:"createdAt"`
}

const (
	NotificationInvitationAccepted = "invitation_accepted"
	NotificationInvitationDeclined = "invitation_declined"
	NotificationTaskAssigned       = "task_assigned"
	NotificationTaskCommented      = "task_commented"
)

type Notification struct {
	ID        ids.ID    `bson:"_id"`
	UserID    ids.ID    `bson:"userId"`
	Type      string    `bson:"type"`
	Message   string    `bson:"message"`
	ProjectID *ids.ID   `bson:"projectId"`
	TaskID    *ids.ID   `bson:"taskId"`
	Read      bool      `bson:"read"`
	CreatedAt time.Time `bson:"createdAt"`
}

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
)

type Invitation struct {
	ID          ids.ID    `bson:"_id"`
	ProjectID   ids.ID    `bson:"projectId"`
	ProjectName string    `bson:"projectName"`
	Email       string    `bson:"email"`
	InvitedBy   ids.ID    `bson:"invitedBy"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type Attachment struct {
	ID          ids.ID    `bson:"_id"`
	TaskID      ids.ID    `bson:"taskId"`
	ProjectID   ids.ID    `bson:"projectId"`
	FileName    string    `bson:"fileName"`
	ContentType string    `bson:"contentType"`
	SizeBytes   int64     `bson:"sizeBytes"`
	ObjectKey   string    `bson:"objectKey"`
	UploadedBy  ids.ID    `bson:"uploadedBy"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// SearchHit is a store-side full text match used when Meilisearch is unavailable.
type SearchHit struct {
	Kind      string
	ID        ids.ID
	ProjectID ids.ID
	Title     string
	Snippet   string
	UpdatedAt time.Time
}
