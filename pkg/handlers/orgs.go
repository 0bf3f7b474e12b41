package handlers

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"

	chiRoute "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/authz"
	"quickcap-auth-backend/pkg/config"
	"quickcap-auth-backend/pkg/metrics"
	"quickcap-auth-backend/pkg/middleware"
	"quickcap-auth-backend/pkg/models"
	"quickcap-auth-backend/pkg/service"
	"quickcap-auth-backend/pkg/utils"
)

type OrgsHandler struct {
	config  *config.Config
	orgs    *service.OrgService
	metrics metrics.Recorder
	logger  *zap.Logger
}

func NewOrgsHandler(cfg *config.Config, orgs *service.OrgService, rec metrics.Recorder, logger *zap.Logger) *OrgsHandler {
	return &OrgsHandler{config: cfg, orgs: orgs, metrics: rec, logger: logger}
}

// GET /org
func (h *OrgsHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	memberships, err := h.orgs.ListMine(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// 弱 ETag：成员关系不变时客户端可复用缓存
	if etag, err := weakETag(memberships); err == nil {
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	utils.WriteSuccessResponse(w, memberships)
}

func weakETag(v interface{}) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write(body)
	return fmt.Sprintf(`W/"%x"`, h.Sum64()), nil
}

// GET /org/{orgId}
func (h *OrgsHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.orgs.Get(r.Context(), caller, chiRoute.URLParam(r, "orgId"))
	h.respond(w, authz.OpView, detail, err)
}

// POST /org/create
func (h *OrgsHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req models.CreateOrgRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.orgs.Create(r.Context(), caller, req.Name)
	h.metrics.RecordOrgOperation(authz.OpCreate.String(), err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, detail)
}

// PUT /org/{orgId}
func (h *OrgsHandler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req models.UpdateOrgRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.orgs.Rename(r.Context(), caller, chiRoute.URLParam(r, "orgId"), req.Name)
	h.respond(w, authz.OpRename, detail, err)
}

// PUT /org/{orgId}/add
func (h *OrgsHandler) AddUsers(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req models.AddUsersToOrgRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.orgs.AddMembers(r.Context(), caller, chiRoute.URLParam(r, "orgId"), req.UsersEmail)
	h.respond(w, authz.OpAddMember, detail, err)
}

// PUT /org/{orgId}/remove
func (h *OrgsHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req models.RemoveUserFromOrgRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.orgs.RemoveMembers(r.Context(), caller, chiRoute.URLParam(r, "orgId"), []string{req.Email})
	h.respond(w, authz.OpRemoveMember, detail, err)
}

// PUT /org/{orgId}/permission
func (h *OrgsHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req models.UpdatePermissionRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.orgs.UpdateRole(r.Context(), caller, chiRoute.URLParam(r, "orgId"), req.Email, req.Permission)
	h.respond(w, authz.OpChangeRole, detail, err)
}

// PUT /org/{orgId}/transfer
func (h *OrgsHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req models.TransferOwnershipRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.orgs.TransferOwnership(r.Context(), caller, chiRoute.URLParam(r, "orgId"), req.NewOwnerEmail)
	h.respond(w, authz.OpTransfer, detail, err)
}

// DELETE /org/{orgId}/leave
func (h *OrgsHandler) LeaveOrganization(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	err = h.orgs.Leave(r.Context(), caller, chiRoute.URLParam(r, "orgId"))
	h.respond(w, authz.OpLeave, map[string]string{"message": "You have left the organization"}, err)
}

// DELETE /org/{orgId}
func (h *OrgsHandler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	err = h.orgs.SoftDelete(r.Context(), caller, chiRoute.URLParam(r, "orgId"))
	h.respond(w, authz.OpDelete, map[string]string{"message": "Organization deleted"}, err)
}

// respond 记录操作结果并输出
func (h *OrgsHandler) respond(w http.ResponseWriter, op authz.Operation, data interface{}, err error) {
	h.metrics.RecordOrgOperation(op.String(), err)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindForbidden {
			h.logger.Debug("org operation denied", zap.String("op", op.String()), zap.Error(err))
		}
		h.writeError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, data)
}

func (h *OrgsHandler) writeError(w http.ResponseWriter, err error) {
	writeError(w, h.config, h.logger, err)
}
