package models

import "time"

// NoticeKind distinguishes regular deliveries from retroactive and error notices.
type NoticeKind string

const (
	// NoticeKindPrompt is a regular scheduled delivery.
	NoticeKindPrompt NoticeKind = "prompt"
	// NoticeKindMissed announces a delivery whose fire time elapsed undelivered.
	NoticeKindMissed NoticeKind = "missed"
	// NoticeKindError reports a failure back to the user.
	NoticeKindError NoticeKind = "error"
)

// Display lifetimes for in-app notices.
const (
	PromptNoticeLifetime = 10 * time.Second
	MissedNoticeLifetime = 60 * time.Second
	ErrorNoticeLifetime  = 15 * time.Second
)

// Notice is one delivered (or deliverable) notification.
type Notice struct {
	ID        string          `json:"id"`
	Kind      NoticeKind      `json:"kind"`
	PackID    string          `json:"pack_id"`
	PackName  string          `json:"pack_name,omitempty"`
	PromptID  string          `json:"prompt_id,omitempty"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Channel   DeliveryChannel `json:"channel"`
	Lifetime  time.Duration   `json:"lifetime"`
	CreatedAt time.Time       `json:"created_at"`
}

// Permission is the state of the native channel authorisation.
type Permission string

const (
	// PermissionDefault means the permission has not been decided yet.
	PermissionDefault Permission = "default"
	// PermissionGranted means native delivery is allowed.
	PermissionGranted Permission = "granted"
	// PermissionDenied means native delivery is refused.
	PermissionDenied Permission = "denied"
)

// TimerInfo describes one live per-pack delivery timer.
type TimerInfo struct {
	PackID      string    `json:"pack_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	FireAt      time.Time `json:"fire_at"`
	Remaining   string    `json:"remaining"`
}
