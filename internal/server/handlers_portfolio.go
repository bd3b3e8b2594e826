package server

import (
	"net/http"
	"strings"

	"github.com/riskwatch/riskwatch/internal/models"
)

// handlePortfolios handles the collection routes:
// POST /api/portfolios and GET /api/portfolios.
func (s *Server) handlePortfolios(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		portfolios, err := s.app.PortfolioService.ListPortfolios(r.Context(), user.ID)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, portfolios)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	p, err := s.app.PortfolioService.CreatePortfolio(r.Context(), user, req.Name, req.Description)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

// routePortfolios dispatches /api/portfolios/{id}[/...] subroutes.
func (s *Server) routePortfolios(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/portfolios/")
	parts := strings.SplitN(rest, "/", 3)
	id := parts[0]
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Portfolio id is required")
		return
	}

	if len(parts) == 1 {
		s.handlePortfolio(w, r, id)
		return
	}

	switch parts[1] {
	case "holdings":
		symbol := ""
		if len(parts) == 3 {
			symbol = parts[2]
		}
		s.handleHoldings(w, r, id, symbol)
	case "snapshot":
		s.handleSnapshot(w, r, id)
	case "risk":
		s.handleRisk(w, r, id)
	case "alerts":
		s.handleAlerts(w, r, id)
	case "rescan":
		s.handleRescan(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, "Unknown portfolio route")
	}
}

// handlePortfolio handles GET and DELETE /api/portfolios/{id}.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.app.PortfolioService.DeactivatePortfolio(r.Context(), user.ID, id); err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
		return
	}

	p, err := s.app.PortfolioService.GetPortfolio(r.Context(), user.ID, id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// holdingRequest is the inbound holding mutation command.
type holdingRequest struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name,omitempty"`
	Quantity      float64  `json:"quantity"`
	AvgPrice      float64  `json:"avg_price"`
	CurrentPrice  float64  `json:"current_price"`
	Sector        string   `json:"sector"`
	Exchange      string   `json:"exchange"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	PE            *float64 `json:"pe,omitempty"`
	PB            *float64 `json:"pb,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
}

// handleHoldings handles POST /api/portfolios/{id}/holdings and
// DELETE /api/portfolios/{id}/holdings/{symbol}.
func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request, id, symbol string) {
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var req holdingRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		holding := models.Holding{
			Symbol:        req.Symbol,
			Name:          req.Name,
			Quantity:      req.Quantity,
			AvgPrice:      req.AvgPrice,
			CurrentPrice:  req.CurrentPrice,
			Sector:        req.Sector,
			Exchange:      req.Exchange,
			MarketCap:     req.MarketCap,
			PE:            req.PE,
			PB:            req.PB,
			DividendYield: req.DividendYield,
			Beta:          req.Beta,
		}
		p, err := s.app.PortfolioService.UpsertHolding(r.Context(), user, id, holding)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if symbol == "" {
			WriteError(w, http.StatusBadRequest, "Holding symbol is required")
			return
		}
		p, err := s.app.PortfolioService.RemoveHolding(r.Context(), user, id, symbol)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)

	default:
		RequireMethod(w, r, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

// handleSnapshot handles GET /api/portfolios/{id}/snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}
	snapshot, err := s.app.PortfolioService.Snapshot(r.Context(), user.ID, id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

// handleRisk handles GET /api/portfolios/{id}/risk.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}
	p, err := s.app.PortfolioService.GetPortfolio(r.Context(), user.ID, id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p.RiskAnalysis)
}

// handleAlerts handles GET /api/portfolios/{id}/alerts.
// ?active=true filters to currently active alerts.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}
	p, err := s.app.PortfolioService.GetPortfolio(r.Context(), user.ID, id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	alerts := p.Alerts
	if r.URL.Query().Get("active") == "true" {
		alerts = p.ActiveAlerts()
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	WriteJSON(w, http.StatusOK, alerts)
}

// handleRescan handles POST /api/portfolios/{id}/rescan.
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	user, ok := s.resolveUser(r.Context(), w)
	if !ok {
		return
	}
	p, err := s.app.PortfolioService.Rescan(r.Context(), user, id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// handleQuotesRefresh handles POST /api/quotes/refresh, the inbound
// price/fraud refresh contract for the market-data collaborator.
func (s *Server) handleQuotesRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var quotes []models.Quote
	if !DecodeJSON(w, r, &quotes) {
		return
	}
	if len(quotes) == 0 {
		WriteError(w, http.StatusBadRequest, "At least one quote is required")
		return
	}
	if err := s.app.PortfolioService.ApplyQuotes(r.Context(), quotes); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"applied": len(quotes)})
}
