package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

// AddRowRequest for POST /api/tables/{tid}/rows and PATCH /api/tables/{tid}/rows/{rid}
type AddRowRequest struct {
	Values map[string]any `json:"values"`
}

// DeleteRowsRequest for POST /api/tables/{tid}/rows/delete
type DeleteRowsRequest struct {
	RowIDs []string `json:"row_ids"`
}

// DeleteRowsResponse reports how many rows were removed.
type DeleteRowsResponse struct {
	Deleted int `json:"deleted"`
}

// TablesHandler handles table and row HTTP requests.
type TablesHandler struct {
	tableService services.TableService
	logger       *zap.Logger
}

// NewTablesHandler creates a new tables handler.
func NewTablesHandler(tableService services.TableService, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{
		tableService: tableService,
		logger:       logger,
	}
}

// RegisterRoutes registers the tables handler's routes on the given mux.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orgs/{oid}/tables", h.Create)
	mux.HandleFunc("GET /api/orgs/{oid}/tables", h.List)
	mux.HandleFunc("GET /api/tables/{tid}", h.Get)
	mux.HandleFunc("DELETE /api/tables/{tid}", h.Delete)
	mux.HandleFunc("POST /api/tables/{tid}/rows", h.AddRow)
	mux.HandleFunc("PATCH /api/tables/{tid}/rows/{rid}", h.UpdateRow)
	mux.HandleFunc("POST /api/tables/{tid}/rows/delete", h.DeleteRows)
}

// Create handles POST /api/orgs/{oid}/tables
func (h *TablesHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}
	req.OrgID = orgID

	table, err := h.tableService.CreateTable(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create table", err, zap.String("org_id", orgID.String()))
		return
	}

	writeOK(w, h.logger, http.StatusCreated, table)
}

// List handles GET /api/orgs/{oid}/tables
func (h *TablesHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}

	tables, err := h.tableService.ListTables(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list tables", err, zap.String("org_id", orgID.String()))
		return
	}

	writeOK(w, h.logger, http.StatusOK, tables)
}

// Get handles GET /api/tables/{tid}
func (h *TablesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	table, err := h.tableService.GetTable(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get table", err, zap.String("table_id", tableID.String()))
		return
	}

	writeOK(w, h.logger, http.StatusOK, table)
}

// Delete handles DELETE /api/tables/{tid}
func (h *TablesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.tableService.DeleteTable(r.Context(), tableID); err != nil {
		writeServiceError(w, h.logger, "Failed to delete table", err, zap.String("table_id", tableID.String()))
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Table deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AddRow handles POST /api/tables/{tid}/rows
func (h *TablesHandler) AddRow(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	var req AddRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	row, err := h.tableService.AddRow(r.Context(), tableID, req.Values)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add row", err, zap.String("table_id", tableID.String()))
		return
	}

	writeOK(w, h.logger, http.StatusCreated, row)
}

// UpdateRow handles PATCH /api/tables/{tid}/rows/{rid}
func (h *TablesHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}
	rowID := r.PathValue("rid")

	var req AddRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	row, err := h.tableService.UpdateRow(r.Context(), tableID, rowID, req.Values)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to update row", err,
			zap.String("table_id", tableID.String()),
			zap.String("row_id", rowID))
		return
	}

	writeOK(w, h.logger, http.StatusOK, row)
}

// DeleteRows handles POST /api/tables/{tid}/rows/delete
func (h *TablesHandler) DeleteRows(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	var req DeleteRowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	n, err := h.tableService.DeleteRows(r.Context(), tableID, req.RowIDs)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to delete rows", err, zap.String("table_id", tableID.String()))
		return
	}

	writeOK(w, h.logger, http.StatusOK, DeleteRowsResponse{Deleted: n})
}
