package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/api/middleware"
)

// CustomersHandler handles customer endpoints.
type CustomersHandler struct {
	svc CustomerService
	log zerolog.Logger
}

// NewCustomersHandler creates a new customers handler.
func NewCustomersHandler(svc CustomerService, log zerolog.Logger) *CustomersHandler {
	return &CustomersHandler{svc: svc, log: log}
}

// Register handles POST /api/customers
func (h *CustomersHandler) Register(c *gin.Context) {
	var req RegisterCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteBadRequest(c, "Invalid request body")
		return
	}

	customer, err := h.svc.RegisterCustomer(c.Request.Context(), req.customer())
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCustomerResponse(customer))
}

// List handles GET /api/customers
func (h *CustomersHandler) List(c *gin.Context) {
	customers, err := h.svc.ListCustomers(c.Request.Context())
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	out := make([]CustomerResponse, 0, len(customers))
	for _, cu := range customers {
		out = append(out, toCustomerResponse(cu))
	}
	c.JSON(http.StatusOK, gin.H{
		"customers": out,
		"count":     len(out),
	})
}

// Get handles GET /api/customers/:id
func (h *CustomersHandler) Get(c *gin.Context) {
	customer, err := h.svc.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(customer))
}

// Accounts handles GET /api/customers/:id/accounts
func (h *CustomersHandler) Accounts(c *gin.Context) {
	accounts, err := h.svc.GetCustomerAccounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts": toAccountResponses(accounts),
		"count":    len(accounts),
	})
}
