package web

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trypie/ledger"
	"trypie/service"
)

type handler struct {
	svc *service.ExpenseService
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

type createGroupRequest struct {
	Title       string `json:"title" binding:"required"`
	Destination string `json:"destination"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
}

func (h *handler) createGroup(c *gin.Context) {
	var req createGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.svc.CreateGroup(c.Request.Context(), CurrentUser(c), service.NewGroup{
		Title:       req.Title,
		Destination: req.Destination,
		Name:        req.Name,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, toGroupJSON(group))
}

func (h *handler) getGroup(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	group, err := h.svc.GetGroup(c.Request.Context(), CurrentUser(c), groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toGroupJSON(group))
}

type addMemberRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func (h *handler) addMember(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	member, err := h.svc.AddMember(c.Request.Context(), CurrentUser(c), groupID, service.NewMember{
		UserID:    ledger.UserID(req.UserID),
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, toMemberJSON(*member))
}

func (h *handler) removeMember(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	err := h.svc.RemoveMember(c.Request.Context(), CurrentUser(c), groupID, ledger.UserID(c.Param("userId")))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

func (h *handler) listMembers(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.svc.ListMembers(c.Request.Context(), CurrentUser(c), groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toMembersJSON(members))
}

func (h *handler) balances(c *gin.Context) {
	groupID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	b, err := h.svc.Balances(c.Request.Context(), CurrentUser(c), groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toBalancesJSON(b))
}

func currency(c *gin.Context) {
	code, err := ledger.NormalizeCurrency(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"code": code, "symbol": ledger.CurrencySymbol(code)})
}
