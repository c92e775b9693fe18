// Package api assembles the HTTP surface of the ledger.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/api/handlers"
	"github.com/dvloznov/teller-ledger/internal/api/middleware"
	"github.com/dvloznov/teller-ledger/internal/jobs"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Customers      handlers.CustomerService
	Accounts       handlers.AccountService
	Interest       handlers.InterestRunner
	Publisher      jobs.Publisher
	AllowedOrigins []string
	Log            zerolog.Logger
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(deps.Log),
		middleware.Recovery(deps.Log),
		middleware.Logger(deps.Log),
		middleware.CORS(deps.AllowedOrigins),
	)

	customers := handlers.NewCustomersHandler(deps.Customers, deps.Log)
	accounts := handlers.NewAccountsHandler(deps.Accounts, deps.Log)

	api := r.Group("/api")

	api.POST("/customers", customers.Register)
	api.GET("/customers", customers.List)
	api.GET("/customers/:id", customers.Get)
	api.GET("/customers/:id/accounts", customers.Accounts)

	api.POST("/accounts", accounts.Open)
	api.GET("/accounts", accounts.List)
	api.GET("/accounts/:number", accounts.Get)
	api.DELETE("/accounts/:number", accounts.Close)
	api.GET("/accounts/:number/balance", accounts.Balance)
	api.GET("/accounts/:number/transactions", accounts.Transactions)
	api.GET("/accounts/:number/transactions/recent", accounts.Recent)
	api.GET("/accounts/:number/verify", accounts.Verify)
	api.POST("/accounts/:number/deposits", accounts.Deposit)
	api.POST("/accounts/:number/withdrawals", accounts.Withdraw)
	api.POST("/accounts/:number/interest", accounts.ApplyInterest)
	api.POST("/transfers", accounts.Transfer)

	if deps.Interest != nil {
		interest := handlers.NewInterestHandler(deps.Interest, deps.Publisher, deps.Log)
		api.GET("/interest/scheduler", interest.Status)
		api.POST("/interest/runs", interest.Trigger)
		api.GET("/interest/runs", interest.List)
		api.GET("/interest/runs/:id", interest.Get)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return r
}
