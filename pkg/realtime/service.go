package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/helios/pkg/async"
	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/projects"
)

// Config controls the broadcast service
type Config struct {
	// AuthorizeJoins requires an active membership in the organization
	// behind a room before a client may join it or update its projects
	AuthorizeJoins bool
	// AllowedOrigins restricts websocket upgrades; empty or "*" allows any
	AllowedOrigins []string

	HealthInterval  time.Duration
	MetricsInterval time.Duration

	SendQueueSize         int
	HandlerTimeout        time.Duration
	MetricsWorkers        int
	RecentMetricsCapacity int
	NotificationCapacity  int
	TrackedProjects       int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		HealthInterval:        30 * time.Second,
		MetricsInterval:       10 * time.Second,
		SendQueueSize:         256,
		HandlerTimeout:        10 * time.Second,
		MetricsWorkers:        4,
		RecentMetricsCapacity: 60,
		NotificationCapacity:  100,
		TrackedProjects:       10000,
	}
}

// Deps are the collaborators of the broadcast service
type Deps struct {
	Projects   projects.Store
	Health     HealthReporter
	Identities IdentityResolver
	Generator  *MetricsGenerator
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Service handles client events and publishes project telemetry
type Service struct {
	cfg        Config
	hub        *Hub
	projects   projects.Store
	health     HealthReporter
	identities IdentityResolver
	generator  *MetricsGenerator
	logger     *observability.Logger
	metrics    *observability.Metrics

	recentMu      sync.Mutex
	recent        *expirable.LRU[string, *RingBuffer[ProjectMetrics]]
	notifications *RingBuffer[Notification]

	now func() time.Time
}

// NewService creates a Service with its own hub
func NewService(cfg Config, deps Deps) *Service {
	defaults := DefaultConfig()
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaults.HealthInterval
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = defaults.MetricsInterval
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaults.SendQueueSize
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaults.HandlerTimeout
	}
	if cfg.MetricsWorkers <= 0 {
		cfg.MetricsWorkers = defaults.MetricsWorkers
	}
	if cfg.RecentMetricsCapacity <= 0 {
		cfg.RecentMetricsCapacity = defaults.RecentMetricsCapacity
	}
	if cfg.NotificationCapacity <= 0 {
		cfg.NotificationCapacity = defaults.NotificationCapacity
	}
	if cfg.TrackedProjects <= 0 {
		cfg.TrackedProjects = defaults.TrackedProjects
	}

	generator := deps.Generator
	if generator == nil {
		generator = NewMetricsGenerator(nil)
	}
	logger := deps.Logger.WithField("component", "realtime")
	retention := cfg.MetricsInterval * time.Duration(cfg.RecentMetricsCapacity)

	return &Service{
		cfg:           cfg,
		hub:           NewHub(logger, deps.Metrics),
		projects:      deps.Projects,
		health:        deps.Health,
		identities:    deps.Identities,
		generator:     generator,
		logger:        logger,
		metrics:       deps.Metrics,
		recent:        expirable.NewLRU[string, *RingBuffer[ProjectMetrics]](cfg.TrackedProjects, nil, retention),
		notifications: NewRingBuffer[Notification](cfg.NotificationCapacity),
		now:           time.Now,
	}
}

// Hub returns the client registry
func (s *Service) Hub() *Hub {
	return s.hub
}

// Close disconnects every client
func (s *Service) Close() {
	s.hub.Close()
}

// blocking reports whether handling event touches the database
func (s *Service) blocking(event string) bool {
	switch event {
	case EventProjectUpdate, EventRequestAnalytics, EventRequestSystemHealth:
		return true
	case EventJoinProject:
		return s.cfg.AuthorizeJoins
	}
	return false
}

// dispatch hands database-backed events to the client's task pump, which
// keeps them in arrival order. Joins that need no lookup run inline.
func (s *Service) dispatch(ctx context.Context, c *Client, env Envelope) {
	if !s.blocking(env.Event) {
		s.HandleEvent(ctx, c, env)
		return
	}
	c.schedule(env)
}

// HandleEvent processes one client frame. Failures are reported to the
// client as an error event and returned for logging.
func (s *Service) HandleEvent(ctx context.Context, c *Client, env Envelope) error {
	s.metrics.RecordClientEvent(clientEventLabel(env.Event))
	logger := s.logger.WithFields(map[string]interface{}{"client_id": c.ID(), "event": env.Event})

	var err error
	switch env.Event {
	case EventJoinOrganization:
		err = s.joinOrganization(c, env.Data)
	case EventJoinProject:
		err = s.joinProject(ctx, c, env.Data)
	case EventProjectUpdate:
		err = s.updateProject(ctx, c, env.Data)
	case EventRequestAnalytics:
		err = s.sendAnalytics(ctx, c, env.Data)
	case EventRequestSystemHealth:
		err = s.sendSystemHealth(ctx, c)
	default:
		err = fmt.Errorf("unknown event %q", env.Event)
		s.emitError(c, "Unknown event")
	}

	if err != nil {
		logger.WithError(err).Warn("client event failed")
	}
	return err
}

func (s *Service) emitError(c *Client, message string) {
	s.hub.Emit(c, EventError, ErrorPayload{Message: message})
}

// decodeID accepts either a bare JSON string or an object with key
func decodeID(data json.RawMessage, key string) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		if v, ok := obj[key].(string); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (s *Service) member(c *Client, orgID string) bool {
	authCtx := c.Auth()
	if authCtx == nil {
		return false
	}
	if authCtx.HasPermission(auth.PermissionAll) {
		return true
	}
	_, ok := authCtx.ActiveMembershipByID(orgID)
	return ok
}

func (s *Service) joinOrganization(c *Client, data json.RawMessage) error {
	orgID := decodeID(data, "organizationId")
	if orgID == "" {
		s.emitError(c, "Organization ID is required")
		return errors.New("missing organization id")
	}
	if s.cfg.AuthorizeJoins && !s.member(c, orgID) {
		s.emitError(c, "Organization access denied")
		return fmt.Errorf("not a member of organization %s", orgID)
	}

	if s.hub.Join(c, OrgRoom(orgID)) {
		s.logger.WithFields(map[string]interface{}{"client_id": c.ID(), "organization_id": orgID}).Debug("joined organization room")
	}
	return nil
}

func (s *Service) joinProject(ctx context.Context, c *Client, data json.RawMessage) error {
	projectID := decodeID(data, "projectId")
	if projectID == "" {
		s.emitError(c, "Project ID is required")
		return errors.New("missing project id")
	}

	if s.cfg.AuthorizeJoins {
		project, err := s.projects.Get(ctx, projectID)
		if err != nil || !s.member(c, project.OrganizationID) {
			s.emitError(c, "Project access denied")
			if err == nil {
				err = fmt.Errorf("not a member of organization %s", project.OrganizationID)
			}
			return err
		}
	}

	if s.hub.Join(c, ProjectRoom(projectID)) {
		s.logger.WithFields(map[string]interface{}{"client_id": c.ID(), "project_id": projectID}).Debug("joined project room")
	}
	return nil
}

// updateProject persists the update and publishes the stored record to the
// project and organization rooms. Failures go to the originator only.
func (s *Service) updateProject(ctx context.Context, c *Client, data json.RawMessage) error {
	const failed = "Failed to update project"

	var req ProjectUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ProjectID == "" {
		s.emitError(c, failed)
		if err == nil {
			err = errors.New("missing project id")
		}
		return fmt.Errorf("invalid project-update payload: %w", err)
	}

	update, err := projects.DecodeUpdate(req.Updates)
	if err != nil {
		s.emitError(c, failed)
		return err
	}

	if s.cfg.AuthorizeJoins {
		current, err := s.projects.Get(ctx, req.ProjectID)
		if err != nil {
			s.emitError(c, failed)
			return err
		}
		if !s.member(c, current.OrganizationID) {
			s.emitError(c, "Project access denied")
			return fmt.Errorf("not a member of organization %s", current.OrganizationID)
		}
	}

	project, err := s.projects.Update(ctx, req.ProjectID, update)
	if err != nil {
		s.emitError(c, failed)
		return err
	}

	s.hub.EmitToRoom(ProjectRoom(project.ID), EventProjectUpdated, project)
	s.hub.EmitToRoom(OrgRoom(project.OrganizationID), EventOrganizationProjectUpdated, project)
	return nil
}

// Analytics aggregates the projects matching req
func (s *Service) Analytics(ctx context.Context, req AnalyticsRequest) (*Analytics, error) {
	list, err := s.projects.ListForAnalytics(ctx, projects.AnalyticsFilter{
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
	})
	if err != nil {
		return nil, err
	}

	timeRange := req.TimeRange
	if timeRange == "" {
		timeRange = DefaultTimeRange
	}

	a := &Analytics{
		TotalProjects: len(list),
		TimeRange:     timeRange,
		Timestamp:     s.now(),
	}
	var efficiency float64
	for _, p := range list {
		if p.Status == projects.StatusOperational {
			a.ActiveProjects++
		}
		a.TotalCapacity += p.SystemCapacity
		a.TotalEnergyProduced += s.generator.EnergyProduction().Current
		efficiency += s.generator.Efficiency(p)
	}
	if len(list) > 0 {
		a.AverageEfficiency = efficiency / float64(len(list))
	}
	return a, nil
}

func (s *Service) sendAnalytics(ctx context.Context, c *Client, data json.RawMessage) error {
	var req AnalyticsRequest
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &req); err != nil {
			s.emitError(c, "Failed to fetch analytics")
			return fmt.Errorf("invalid request-analytics payload: %w", err)
		}
	}

	analytics, err := s.Analytics(ctx, req)
	if err != nil {
		s.emitError(c, "Failed to fetch analytics")
		return err
	}
	return s.hub.Emit(c, EventAnalyticsData, analytics)
}

func (s *Service) sendSystemHealth(ctx context.Context, c *Client) error {
	health, err := s.health.Check(ctx)
	if err != nil {
		s.emitError(c, "Failed to fetch system health")
		return err
	}
	return s.hub.Emit(c, EventSystemHealth, health)
}

// BroadcastSystemHealth sends a health snapshot to every client
func (s *Service) BroadcastSystemHealth(ctx context.Context) error {
	health, err := s.health.Check(ctx)
	if err != nil {
		return fmt.Errorf("failed to check system health: %w", err)
	}
	_, err = s.hub.Broadcast(EventSystemHealthUpdate, health)
	return err
}

// BroadcastProjectMetrics publishes fresh metrics for project to its
// project and organization rooms and records them
func (s *Service) BroadcastProjectMetrics(project *projects.Project) error {
	metrics := s.generator.Project(project)
	s.recordMetrics(metrics)

	if _, err := s.hub.EmitToRoom(ProjectRoom(project.ID), EventRealTimeMetrics, metrics); err != nil {
		return err
	}
	_, err := s.hub.EmitToRoom(OrgRoom(project.OrganizationID), EventOrganizationMetricsUpdate, metrics)
	return err
}

// BroadcastOperationalMetrics publishes metrics for every operational
// project. Per-project failures are logged and do not stop the others.
func (s *Service) BroadcastOperationalMetrics(ctx context.Context) error {
	list, err := s.projects.ListOperational(ctx)
	if err != nil {
		return fmt.Errorf("failed to list operational projects: %w", err)
	}

	errs := async.Batch(ctx, s.logger, list, s.cfg.MetricsWorkers, "project metrics", s.cfg.HandlerTimeout,
		func(_ context.Context, p *projects.Project) error {
			if err := s.BroadcastProjectMetrics(p); err != nil {
				return fmt.Errorf("project %s: %w", p.ID, err)
			}
			return nil
		})
	for _, err := range errs {
		s.logger.WithError(err).Warn("failed to broadcast project metrics")
	}
	return nil
}

func (s *Service) recordMetrics(m ProjectMetrics) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	ring, ok := s.recent.Get(m.ProjectID)
	if !ok {
		ring = NewRingBuffer[ProjectMetrics](s.cfg.RecentMetricsCapacity)
		s.recent.Add(m.ProjectID, ring)
	}
	ring.Push(m)
}

// RecentMetrics returns the retained metrics of a project, oldest first
func (s *Service) RecentMetrics(projectID string) []ProjectMetrics {
	ring, ok := s.recent.Get(projectID)
	if !ok {
		return []ProjectMetrics{}
	}
	return ring.Snapshot()
}

// SendSystemNotification broadcasts a notification to every client. An
// empty type defaults to info.
func (s *Service) SendSystemNotification(message string, typ NotificationType) (Notification, error) {
	if typ == "" {
		typ = NotificationInfo
	}
	if !typ.Valid() {
		return Notification{}, fmt.Errorf("invalid notification type %q", typ)
	}

	n := Notification{Message: message, Type: typ, Timestamp: s.now()}
	s.notifications.Push(n)
	if _, err := s.hub.Broadcast(EventSystemNotification, n); err != nil {
		return n, err
	}
	return n, nil
}

// RecentNotifications returns retained notifications, oldest first
func (s *Service) RecentNotifications() []Notification {
	return s.notifications.Snapshot()
}
