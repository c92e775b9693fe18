package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/api/middleware"
	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

const defaultRecentLimit = 10

// AccountsHandler handles account, ledger and transfer endpoints.
type AccountsHandler struct {
	svc AccountService
	log zerolog.Logger
	now func() time.Time
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(svc AccountService, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{svc: svc, log: log, now: time.Now}
}

// Open handles POST /api/accounts
func (h *AccountsHandler) Open(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteBadRequest(c, "Invalid request body")
		return
	}

	account, err := h.svc.OpenAccount(c.Request.Context(), banking.OpenAccountRequest{
		Teller:         req.Teller,
		CustomerID:     req.CustomerID,
		Kind:           req.Kind,
		Branch:         req.Branch,
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAccountResponse(account))
}

// List handles GET /api/accounts?limit=N
func (h *AccountsHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		middleware.WriteBadRequest(c, err.Error())
		return
	}

	accounts, err := h.svc.ListAccounts(c.Request.Context(), limit)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts": toAccountResponses(accounts),
		"count":    len(accounts),
	})
}

// Get handles GET /api/accounts/:number
func (h *AccountsHandler) Get(c *gin.Context) {
	account, err := h.svc.GetAccount(c.Request.Context(), c.Param("number"))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(account))
}

// Balance handles GET /api/accounts/:number/balance
func (h *AccountsHandler) Balance(c *gin.Context) {
	balance, err := h.svc.GetBalance(c.Request.Context(), c.Param("number"))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Transactions handles GET /api/accounts/:number/transactions?since=&until=&limit=
func (h *AccountsHandler) Transactions(c *gin.Context) {
	var filter repository.TransactionFilter
	var err error
	if filter.Since, err = queryTime(c, "since", false); err != nil {
		middleware.WriteBadRequest(c, err.Error())
		return
	}
	if filter.Until, err = queryTime(c, "until", true); err != nil {
		middleware.WriteBadRequest(c, err.Error())
		return
	}
	if filter.Limit, err = queryInt(c, "limit", 0); err != nil {
		middleware.WriteBadRequest(c, err.Error())
		return
	}

	txs, err := h.svc.GetTransactions(c.Request.Context(), c.Param("number"), filter)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Recent handles GET /api/accounts/:number/transactions/recent?limit=N
func (h *AccountsHandler) Recent(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultRecentLimit)
	if err != nil {
		middleware.WriteBadRequest(c, err.Error())
		return
	}

	txs, err := h.svc.GetRecentTransactions(c.Request.Context(), c.Param("number"), limit)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Deposit handles POST /api/accounts/:number/deposits
func (h *AccountsHandler) Deposit(c *gin.Context) {
	var req MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteBadRequest(c, "Invalid request body")
		return
	}

	txn, err := h.svc.Deposit(c.Request.Context(), c.Param("number"), req.Amount, req.Description)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// Withdraw handles POST /api/accounts/:number/withdrawals
func (h *AccountsHandler) Withdraw(c *gin.Context) {
	var req MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteBadRequest(c, "Invalid request body")
		return
	}

	txn, err := h.svc.Withdraw(c.Request.Context(), c.Param("number"), req.Amount, req.Description)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// Transfer handles POST /api/transfers
func (h *AccountsHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteBadRequest(c, "Invalid request body")
		return
	}

	res, err := h.svc.Transfer(c.Request.Context(), banking.TransferRequest{
		From:        req.From,
		To:          req.To,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ApplyInterest handles POST /api/accounts/:number/interest
func (h *AccountsHandler) ApplyInterest(c *gin.Context) {
	var req AccrualRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.WriteBadRequest(c, "Invalid request body")
			return
		}
	}
	asOf := h.now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	res, err := h.svc.ApplyInterest(c.Request.Context(), c.Param("number"), asOf)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, InterestResponse{
		Applied:     res.Applied,
		Months:      res.Months,
		Amount:      res.Amount,
		Transaction: res.Transaction,
	})
}

// Verify handles GET /api/accounts/:number/verify
func (h *AccountsHandler) Verify(c *gin.Context) {
	number := c.Param("number")
	if err := h.svc.VerifyAccount(c.Request.Context(), number); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_number": number, "consistent": true})
}

// Close handles DELETE /api/accounts/:number
func (h *AccountsHandler) Close(c *gin.Context) {
	if err := h.svc.CloseAccount(c.Request.Context(), c.Param("number")); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
