package services

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/connections"
	"github.com/savvyfin/advisor/internal/infrastructure/finagg"
	"github.com/savvyfin/advisor/internal/infrastructure/openai"
	"github.com/savvyfin/advisor/internal/infrastructure/qloo"
	"github.com/savvyfin/advisor/internal/infrastructure/redis"
	"github.com/savvyfin/advisor/internal/services/advisor"
	"github.com/savvyfin/advisor/internal/services/auth"
	"github.com/savvyfin/advisor/internal/services/cache"
	"github.com/savvyfin/advisor/internal/services/insight"
	"github.com/savvyfin/advisor/internal/services/persona"
	"github.com/savvyfin/advisor/internal/store"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	store          *store.Store
	redisService   *redis.Service
	cacheService   *cache.Service
	openAIService  *openai.Service
	qlooService    *qloo.Service
	finaggService  *finagg.Service
	authService    *auth.Service
	personaService *persona.Service
	insightService *insight.Service
	advisorService *advisor.Service
	connManager    *connections.Manager
}

// InitializeServices wires every service around the shared store
func InitializeServices(st *store.Store) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	// Optional infrastructure clients; each returns nil when unconfigured
	redisService := redis.NewService()
	qlooService := qloo.NewService()
	finaggService := finagg.NewService()
	log.Info().Msg("Initializing infrastructure services")

	cacheService := cache.NewService(redisService)
	authService := auth.NewService()

	// The OpenAI client is required: responses and persona narratives depend on it
	openAIService := openai.NewService()
	if openAIService == nil {
		log.Fatal().Msg("Failed to initialize OpenAI service - service is required for core functionality")
	}

	personaService := persona.NewService(st, qlooService, openAIService, cacheService)
	insightService := insight.NewService(st, finaggService, cacheService)
	advisorService := advisor.NewService(st, advisor.NewOpenAIStreamer(openAIService), insightService)

	log.Info().Msg("All services initialized successfully")

	return &Services{
		store:          st,
		redisService:   redisService,
		cacheService:   cacheService,
		openAIService:  openAIService,
		qlooService:    qlooService,
		finaggService:  finaggService,
		authService:    authService,
		personaService: personaService,
		insightService: insightService,
		advisorService: advisorService,
		connManager:    connections.NewManager(connections.DefaultTimeouts),
	}, nil
}

// GetStore returns the database store
func (s *Services) GetStore() *store.Store {
	return s.store
}

// GetAuthService returns the auth service
func (s *Services) GetAuthService() *auth.Service {
	return s.authService
}

// GetAdvisorService returns the response coordinator
func (s *Services) GetAdvisorService() *advisor.Service {
	return s.advisorService
}

// GetPersonaService returns the persona service
func (s *Services) GetPersonaService() *persona.Service {
	return s.personaService
}

// GetInsightService returns the financial insight service
func (s *Services) GetInsightService() *insight.Service {
	return s.insightService
}

// GetConnectionManager returns the live stream registry
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connManager
}
