package conversation

import (
	"context"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docbot-ai/platform/internal/observability/metrics"
	"github.com/docbot-ai/platform/internal/retrieval"
	"github.com/docbot-ai/platform/internal/schedule"
	"github.com/docbot-ai/platform/internal/tenancy"
	"github.com/docbot-ai/platform/internal/tenant"
	"github.com/docbot-ai/platform/pkg/logging"
)

// ManagerConfig tunes every session the manager creates.
type ManagerConfig struct {
	Model       string
	MaxSteps    int
	StepTimeout time.Duration
	TopK        int

	// FallbackAPIKey is used for bots registered without a credential of
	// their own.
	FallbackAPIKey string
}

// Manager hands out at most one live Session per bot. Sessions are
// created lazily on first use and kept for the life of the process;
// the instructions and credential captured at creation stick until the
// process restarts.
type Manager struct {
	registry  *tenant.Registry
	retrieval *retrieval.Service
	locks     *tenancy.Locks
	cfg       ManagerConfig
	logger    *logging.Logger
	planner   *metrics.PlannerMetrics
	booking   *metrics.BookingMetrics
	factory   func(apiKey string) chatClient
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption customizes manager construction.
type ManagerOption func(*Manager)

// WithClientFactory overrides how planner clients are built from a
// credential. Tests use it to substitute scripted clients.
func WithClientFactory(factory func(apiKey string) chatClient) ManagerOption {
	return func(m *Manager) { m.factory = factory }
}

// WithClock overrides the time source used for date parsing and
// elapsed-slot filtering.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager wires a session manager over the bot registry.
func NewManager(
	registry *tenant.Registry,
	retrievalSvc *retrieval.Service,
	locks *tenancy.Locks,
	cfg ManagerConfig,
	logger *logging.Logger,
	planner *metrics.PlannerMetrics,
	booking *metrics.BookingMetrics,
	opts ...ManagerOption,
) *Manager {
	if registry == nil {
		panic("conversation: registry is required")
	}
	if locks == nil {
		panic("conversation: locks are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 8
	}

	m := &Manager{
		registry:  registry,
		retrieval: retrievalSvc,
		locks:     locks,
		cfg:       cfg,
		logger:    logger,
		planner:   planner,
		booking:   booking,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	m.factory = func(apiKey string) chatClient {
		return openai.NewClient(apiKey)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the bot's session, creating it on first use from
// the supplied metadata. A session that already exists keeps the
// instructions and credential it was created with; later metadata edits
// take effect only after a restart.
func (m *Manager) GetOrCreate(botID string, meta tenant.Metadata) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[botID]; ok {
		return s, nil
	}

	paths, err := m.registry.Resolve(botID)
	if err != nil {
		return nil, err
	}

	store := schedule.NewStore(paths.SchedulePath, m.locks.For(botID), m.logger, m.booking)
	catalog := NewCatalog(CatalogDeps{
		Store:     store,
		Retrieval: m.retrieval,
		IndexDir:  paths.IndexDir,
		TopK:      m.cfg.TopK,
		Now:       m.now,
		Logger:    m.logger,
		Metrics:   m.planner,
	})

	key := meta.APIKey
	if key == "" {
		key = m.cfg.FallbackAPIKey
	}

	s := newSession(botID, m.factory(key), catalog, sessionConfig{
		model:        m.cfg.Model,
		instructions: meta.Instructions,
		greeting:     meta.Greeting,
		maxSteps:     m.cfg.MaxSteps,
		stepTimeout:  m.cfg.StepTimeout,
		logger:       m.logger,
		metrics:      m.planner,
	})
	m.sessions[botID] = s
	m.logger.Info("session created", "bot_id", botID)
	return s, nil
}

// Start ensures the bot's session exists, rewinds its memory, and
// returns the greeting to present.
func (m *Manager) Start(ctx context.Context, botID string) (string, error) {
	s, err := m.sessionFor(botID)
	if err != nil {
		return "", err
	}
	return s.Reset(), nil
}

// Turn routes one user message to the bot's session.
func (m *Manager) Turn(ctx context.Context, botID, userText string) (string, error) {
	s, err := m.sessionFor(botID)
	if err != nil {
		return "", err
	}
	return s.Turn(ctx, userText)
}

// TurnStream routes one user message and streams the planner's
// intermediate steps.
func (m *Manager) TurnStream(ctx context.Context, botID, userText string) (<-chan Event, error) {
	s, err := m.sessionFor(botID)
	if err != nil {
		return nil, err
	}
	return s.TurnStream(ctx, userText), nil
}

func (m *Manager) sessionFor(botID string) (*Session, error) {
	meta, err := m.registry.LoadMetadata(botID)
	if err != nil {
		return nil, err
	}
	return m.GetOrCreate(botID, meta)
}
