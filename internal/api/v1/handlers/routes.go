package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	v1mware "github.com/savvyfin/advisor/internal/api/v1/middleware"
	"github.com/savvyfin/advisor/internal/services"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	// v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Public v1 routes (no auth required)
	v1.Handle("/auth/register", v1mware.RateLimit("auth_token")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleRegister(services.GetAuthService(), services.GetStore(), w, r)
	}))).Methods("POST")
	v1.Handle("/auth/login", v1mware.RateLimit("auth_token")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleLogin(services.GetAuthService(), services.GetStore(), w, r)
	}))).Methods("POST")

	// WebSocket transport authenticates during its own handshake
	v1.HandleFunc("/chat/ws", func(w http.ResponseWriter, r *http.Request) {
		HandleChatWebSocket(services.GetAdvisorService(), services.GetStore(), services.GetConnectionManager(), w, r)
	}).Methods("GET")

	// Protected v1 routes (require auth)
	v1protectedRouter := v1.NewRoute().Subrouter()
	v1protectedRouter.Use(v1mware.RequireAuth())

	v1protectedRouter.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		HandleMe(services.GetStore(), w, r)
	}).Methods("GET")

	v1protectedRouter.HandleFunc("/users/profile", func(w http.ResponseWriter, r *http.Request) {
		HandleGetProfile(services.GetStore(), w, r)
	}).Methods("GET")
	v1protectedRouter.HandleFunc("/users/profile", func(w http.ResponseWriter, r *http.Request) {
		HandleUpdateProfile(services.GetStore(), w, r)
	}).Methods("PUT")

	// Protected conversation routes
	v1conversationsRouter := v1protectedRouter.PathPrefix("/conversations").Subrouter()
	v1conversationsRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleCreateConversation(services.GetStore(), w, r)
	}).Methods("POST")
	v1conversationsRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleListConversations(services.GetStore(), w, r)
	}).Methods("GET")
	v1conversationsRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleGetConversation(services.GetStore(), w, r)
	}).Methods("GET")
	v1conversationsRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleUpdateConversation(services.GetStore(), w, r)
	}).Methods("PUT")
	v1conversationsRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleDeleteConversation(services.GetStore(), w, r)
	}).Methods("DELETE")
	v1conversationsRouter.HandleFunc("/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		HandleListMessages(services.GetStore(), w, r)
	}).Methods("GET")

	// Protected chat route
	v1protectedRouter.Handle("/chat", v1mware.RateLimit("chat_message")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleChat(services.GetAdvisorService(), services.GetStore(), services.GetConnectionManager(), w, r)
	}))).Methods("POST")

	// Protected persona routes
	v1personasRouter := v1protectedRouter.PathPrefix("/personas").Subrouter()
	v1personasRouter.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		HandleGetPersona(services.GetPersonaService(), w, r)
	}).Methods("GET")
	v1personasRouter.Handle("/generate", v1mware.RateLimit("persona_generate")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleGeneratePersona(services.GetPersonaService(), w, r)
	}))).Methods("POST")

	// Protected insight routes
	v1insightsRouter := v1protectedRouter.PathPrefix("/insights").Subrouter()
	v1insightsRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleGetInsights(services.GetInsightService(), w, r)
	}).Methods("GET")
	v1insightsRouter.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		HandleGetFinancialSummary(services.GetInsightService(), w, r)
	}).Methods("GET")
	v1insightsRouter.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		HandleGetInsightStatus(services.GetInsightService(), w, r)
	}).Methods("GET")
	v1insightsRouter.HandleFunc("/setup", func(w http.ResponseWriter, r *http.Request) {
		HandleSetupInsights(services.GetInsightService(), w, r)
	}).Methods("POST")
}
