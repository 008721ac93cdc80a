package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"socratic/models"
	"socratic/services"

	"github.com/gorilla/mux"
	"github.com/invopop/jsonschema"
)

type CatalogHandler struct {
	service      *services.ConversationService
	recordSchema *jsonschema.Schema
}

func NewCatalogHandler(service *services.ConversationService) *CatalogHandler {
	return &CatalogHandler{
		service:      service,
		recordSchema: RecordSchema(),
	}
}

// RecordSchema describes the persisted conversation record.
func RecordSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&models.ConversationRecord{})
	schema.Title = "ConversationRecord"
	return schema
}

func (h *CatalogHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/categories", h.GetCategories).Methods("GET")
	router.HandleFunc("/schema/conversation-record", h.GetRecordSchema).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")
}

func (h *CatalogHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received categories request")
	h.writeJSONResponse(w, http.StatusOK, h.service.Categories())
}

func (h *CatalogHandler) GetRecordSchema(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.recordSchema)
}

func (h *CatalogHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *CatalogHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
