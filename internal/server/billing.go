package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/renderforge/billing/internal/billing/domain"
	ledgerdomain "github.com/renderforge/billing/internal/ledger/domain"
)

type billingAccountResponse struct {
	AccountID           string `json:"account_id"`
	UserID              string `json:"user_id"`
	CustomerID          string `json:"customer_id,omitempty"`
	SubscriptionID      string `json:"subscription_id,omitempty"`
	PlanKey             string `json:"plan_key"`
	Status              string `json:"status"`
	CurrentPeriodStart  int64  `json:"current_period_start"`
	CurrentPeriodEnd    int64  `json:"current_period_end"`
	MonthlyCreditLimit  int64  `json:"monthly_credit_limit"`
	MonthlyCreditsUsed  int64  `json:"monthly_credits_used"`
	AddonCreditsBalance int64  `json:"addon_credits_balance"`
}

type ledgerEntryResponse struct {
	ID                string    `json:"id"`
	Amount            int64     `json:"amount"`
	Reason            string    `json:"reason"`
	Source            string    `json:"source"`
	MonthlyUsedAfter  int64     `json:"monthly_used_after"`
	AddonBalanceAfter int64     `json:"addon_balance_after"`
	CreatedAt         time.Time `json:"created_at"`
}

// HandleGetUserBilling returns the account's live balances plus its recent
// ledger history.
func (s *Server) HandleGetUserBilling(c *gin.Context) {
	userID, err := snowflake.ParseString(strings.TrimSpace(c.Param("user_id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}

	account, err := s.billingSvc.GetByUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, billingdomain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	entries, err := s.ledgerSvc.ListByUser(c.Request.Context(), userID, 50)
	if err != nil && !errors.Is(err, ledgerdomain.ErrEntryNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	resp := billingAccountResponse{
		AccountID:           account.ID.String(),
		UserID:              account.UserID.String(),
		CustomerID:          account.CustomerID,
		PlanKey:             string(account.PlanKey),
		Status:              string(account.Status),
		CurrentPeriodStart:  account.CurrentPeriodStart,
		CurrentPeriodEnd:    account.CurrentPeriodEnd,
		MonthlyCreditLimit:  account.MonthlyCreditLimit,
		MonthlyCreditsUsed:  account.MonthlyCreditsUsed,
		AddonCreditsBalance: account.AddonCreditsBalance,
	}
	if account.SubscriptionID != nil {
		resp.SubscriptionID = *account.SubscriptionID
	}

	history := make([]ledgerEntryResponse, 0, len(entries))
	for _, entry := range entries {
		history = append(history, ledgerEntryResponse{
			ID:                entry.ID.String(),
			Amount:            entry.Amount,
			Reason:            string(entry.Reason),
			Source:            string(entry.Source),
			MonthlyUsedAfter:  entry.MonthlyUsedAfter,
			AddonBalanceAfter: entry.AddonBalanceAfter,
			CreatedAt:         entry.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"account": resp,
		"ledger":  history,
	})
}
