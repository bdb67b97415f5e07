package web

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"trypie/ledger"
	"trypie/report"
	"trypie/service"
)

type customShareRequest struct {
	UserID string      `json:"user_id"`
	Amount amountField `json:"amount"`
}

type createExpenseRequest struct {
	Title       string               `json:"title"`
	Category    string               `json:"category"`
	Amount      amountField          `json:"amount"`
	Currency    string               `json:"currency"`
	PaidBy      string               `json:"paid_by"`
	SplitMethod string               `json:"split_method"`
	Members     []string             `json:"members"`
	Shares      []customShareRequest `json:"shares"`
}

func (req createExpenseRequest) toNewExpense() service.NewExpense {
	in := service.NewExpense{
		Title:    req.Title,
		Category: req.Category,
		Amount:   string(req.Amount),
		Currency: req.Currency,
		PaidBy:   ledger.UserID(req.PaidBy),
		Method:   ledger.SplitMethod(req.SplitMethod),
	}
	for _, m := range req.Members {
		in.Members = append(in.Members, ledger.UserID(m))
	}
	for _, s := range req.Shares {
		in.Custom = append(in.Custom, ledger.CustomEntry{UserID: ledger.UserID(s.UserID), Amount: string(s.Amount)})
	}
	return in
}

func (h *handler) createExpense(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req createExpenseRequest
	if !bindJSON(c, &req) {
		return
	}
	expense, err := h.svc.CreateExpense(c.Request.Context(), CurrentUser(c), groupID, req.toNewExpense())
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, toExpenseJSON(expense))
}

// listExpenses returns the snapshot every ledger figure on the client is computed from.
func (h *handler) listExpenses(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	expenses, err := h.svc.Snapshot(c.Request.Context(), CurrentUser(c), groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]expenseJSON, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toLedgerExpenseJSON(e))
	}
	Success(c, out)
}

func (h *handler) getExpense(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	expense, err := h.svc.GetExpense(c.Request.Context(), CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toExpenseJSON(expense))
}

type updateExpenseRequest struct {
	Title    *string `json:"title"`
	Category *string `json:"category"`
	Currency *string `json:"currency"`
}

func (h *handler) updateExpense(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateExpenseRequest
	if !bindJSON(c, &req) {
		return
	}
	info, changes, err := h.svc.UpdateExpense(c.Request.Context(), CurrentUser(c), id, service.ExpenseEdit{
		Title:    req.Title,
		Category: req.Category,
		Currency: req.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	out := toExpenseInfoJSON(*info)
	out.Changes = changes
	Success(c, out)
}

func (h *handler) deleteExpense(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteExpense(c.Request.Context(), CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

func (h *handler) exportExpenses(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user := CurrentUser(c)
	group, err := h.svc.GetGroup(ctx, user, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	expenses, err := h.svc.Snapshot(ctx, user, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	names := make(map[ledger.UserID]string, len(group.Members))
	for _, m := range group.Members {
		names[m.UserID] = m.Name
	}

	filename := fmt.Sprintf("expenses_%s.xlsx", groupID)
	c.Header("Content-Type", report.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := report.WriteExpenses(c.Writer, expenses, names); err != nil {
		respondError(c, fmt.Errorf("export group %s: %w", groupID, err))
	}
}

type setPaidRequest struct {
	IsPaid *bool `json:"is_paid" binding:"required"`
}

func (h *handler) setSharePaid(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req setPaidRequest
	if !bindJSON(c, &req) {
		return
	}
	share, err := h.svc.SetSharePaid(c.Request.Context(), CurrentUser(c), id, *req.IsPaid)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toShareJSON(*share))
}

func (h *handler) shareHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	transitions, err := h.svc.ShareHistory(c.Request.Context(), CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toTransitionsJSON(transitions))
}
