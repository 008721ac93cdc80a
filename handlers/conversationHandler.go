package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"socratic/db"
	"socratic/models"
	"socratic/services"
	"socratic/services/catalog"
	"socratic/services/tutor"

	"github.com/gorilla/mux"
)

type ConversationHandler struct {
	service *services.ConversationService
}

func NewConversationHandler(service *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/conversations", h.StartPredefined).Methods("POST")
	router.HandleFunc("/conversations/custom", h.StartCustom).Methods("POST")
	router.HandleFunc("/conversations/{id}/messages", h.SendMessage).Methods("POST")
	router.HandleFunc("/conversations/{id}/close", h.Close).Methods("POST")
	router.HandleFunc("/conversations/{id}/evaluate", h.Evaluate).Methods("POST")
	router.HandleFunc("/users/{email}/conversations", h.ListByOwner).Methods("GET")
	router.HandleFunc("/users/{email}/conversations/{id}", h.GetConversation).Methods("GET")
	router.HandleFunc("/users/{email}/conversations/{id}/messages", h.GetMessages).Methods("GET")
}

func (h *ConversationHandler) StartPredefined(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received start conversation request")

	var req models.StartPredefinedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode start conversation JSON: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	resp, err := h.service.StartPredefined(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("[INFO] Started conversation %s", resp.SessionID)
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ConversationHandler) StartCustom(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received start custom conversation request")

	var req models.StartCustomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode start custom conversation JSON: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	resp, err := h.service.StartCustom(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("[INFO] Started custom conversation %s", resp.SessionID)
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log.Printf("[INFO] Received message for conversation %s", id)

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode message JSON: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	resp, err := h.service.SendMessage(r.Context(), id, &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log.Printf("[INFO] Received close request for conversation %s", id)

	if err := h.service.Close(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *ConversationHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log.Printf("[INFO] Received evaluation request for conversation %s", id)

	resp, err := h.service.Evaluate(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("[INFO] Evaluation for conversation %s completed", id)
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ConversationHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]

	records, err := h.service.ListByOwner(r.Context(), email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, records)
}

func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	record, err := h.service.GetConversation(r.Context(), vars["email"], vars["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, record)
}

func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	entries, err := h.service.GetMessages(r.Context(), vars["email"], vars["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, entries)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrInvalidSelection),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, tutor.ErrEmptyMessage),
		errors.Is(err, tutor.ErrEmptyTranscript):
		return http.StatusBadRequest
	case errors.Is(err, tutor.ErrSessionNotFound),
		errors.Is(err, db.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, tutor.ErrUpstreamModel):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *ConversationHandler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] Request failed: %v", err)
	}
	h.writeErrorResponse(w, status, err.Error())
}

func (h *ConversationHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *ConversationHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
