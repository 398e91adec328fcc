package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client events
const (
	EventJoinOrganization    = "join-organization"
	EventJoinProject         = "join-project"
	EventProjectUpdate       = "project-update"
	EventRequestAnalytics    = "request-analytics"
	EventRequestSystemHealth = "request-system-health"
)

// UnknownEvent labels client frames whose event name is not recognized
const UnknownEvent = "unknown"

// clientEventLabel maps a client-supplied event name onto the closed set
// used as a metric label
func clientEventLabel(event string) string {
	switch event {
	case EventJoinOrganization, EventJoinProject, EventProjectUpdate,
		EventRequestAnalytics, EventRequestSystemHealth:
		return event
	}
	return UnknownEvent
}

// Server events
const (
	EventProjectUpdated             = "project-updated"
	EventOrganizationProjectUpdated = "organization-project-updated"
	EventRealTimeMetrics            = "real-time-metrics"
	EventOrganizationMetricsUpdate  = "organization-metrics-update"
	EventAnalyticsData              = "analytics-data"
	EventSystemHealth               = "system-health"
	EventSystemHealthUpdate         = "system-health-update"
	EventSystemNotification         = "system-notification"
	EventError                      = "error"
)

// Envelope is the frame exchanged in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// OrgRoom names the room of an organization
func OrgRoom(orgID string) string {
	return "org-" + orgID
}

// ProjectRoom names the room of a project
func ProjectRoom(projectID string) string {
	return "project-" + projectID
}

// ErrorPayload is the body of an error event
type ErrorPayload struct {
	Message string `json:"message"`
}

// NotificationType is the severity of a system notification
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Valid reports whether t is a known notification type
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInfo, NotificationWarning, NotificationError:
		return true
	}
	return false
}

// Notification is the body of a system-notification event
type Notification struct {
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
}

// ProjectUpdateRequest is the body of a project-update event
type ProjectUpdateRequest struct {
	ProjectID string          `json:"projectId"`
	Updates   json.RawMessage `json:"updates"`
}

// AnalyticsRequest is the body of a request-analytics event
type AnalyticsRequest struct {
	OrganizationID string `json:"organizationId,omitempty"`
	ProjectID      string `json:"projectId,omitempty"`
	TimeRange      string `json:"timeRange,omitempty"`
}

// DefaultTimeRange is echoed when a request-analytics event names none
const DefaultTimeRange = "24h"

// Analytics is the body of an analytics-data event
type Analytics struct {
	TotalProjects       int       `json:"totalProjects"`
	ActiveProjects      int       `json:"activeProjects"`
	TotalCapacity       float64   `json:"totalCapacity"`
	TotalEnergyProduced float64   `json:"totalEnergyProduced"`
	AverageEfficiency   float64   `json:"averageEfficiency"`
	TimeRange           string    `json:"timeRange"`
	Timestamp           time.Time `json:"timestamp"`
}
