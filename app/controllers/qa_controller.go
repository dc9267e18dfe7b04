package controllers

import (
	"context"
	"strconv"

	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/models"
	"github.com/aihub/support-rag/internal/services"
)

// QAService 问答文档管理，由 services.QAService 实现
type QAService interface {
	Create(ctx context.Context, req services.CreateQARequest) (*models.QADocument, error)
	Get(ctx context.Context, id uint) (*models.QADocument, error)
	Search(ctx context.Context, req services.SearchQARequest) (*services.QAListResult, error)
	List(ctx context.Context, req services.SearchQARequest) (*services.QAListResult, error)
	Update(ctx context.Context, id uint, req services.UpdateQARequest) error
	Delete(ctx context.Context, id uint) error
	BatchDelete(ctx context.Context, req services.BatchDeleteRequest) (int64, error)
}

// QAController 知识库问答文档接口
type QAController struct {
	BaseController
	QA QAService
}

// Create POST /qa/create
func (c *QAController) Create() {
	var req services.CreateQARequest
	if !c.bindJSON(&req) {
		return
	}

	doc, err := c.QA.Create(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("创建成功", doc)
}

// Get GET /qa/:id
func (c *QAController) Get() {
	id, ok := c.pathID(":id")
	if !ok {
		return
	}

	doc, err := c.QA.Get(c.Ctx.Request.Context(), id)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("获取成功", doc)
}

// Search POST /qa/search，条件放在请求体中
func (c *QAController) Search() {
	var req services.SearchQARequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.QA.Search(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("搜索成功", result)
}

// List POST /qa/list，条件放在查询参数中
func (c *QAController) List() {
	req, err := c.listRequest()
	if err != nil {
		c.JSONAppError(err)
		return
	}

	result, err := c.QA.List(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("获取成功", result)
}

// Update POST /qa/:id/update
func (c *QAController) Update() {
	id, ok := c.pathID(":id")
	if !ok {
		return
	}
	var req services.UpdateQARequest
	if !c.bindJSON(&req) {
		return
	}

	if err := c.QA.Update(c.Ctx.Request.Context(), id, req); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("更新成功", map[string]interface{}{"id": id})
}

// Delete POST /qa/:id/delete
func (c *QAController) Delete() {
	id, ok := c.pathID(":id")
	if !ok {
		return
	}

	if err := c.QA.Delete(c.Ctx.Request.Context(), id); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("删除成功", map[string]interface{}{"id": id})
}

// BatchDelete POST /qa/batch/delete
func (c *QAController) BatchDelete() {
	var req services.BatchDeleteRequest
	if !c.bindJSON(&req) {
		return
	}

	n, err := c.QA.BatchDelete(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("批量删除成功", map[string]interface{}{"deleted_count": n})
}

func (c *QAController) listRequest() (services.SearchQARequest, error) {
	req := services.SearchQARequest{
		Category1: c.GetString("category_1"),
		Category2: c.GetString("category_2"),
	}

	var err error
	if req.KBID, err = c.optionalUint("kb_id"); err != nil {
		return req, err
	}
	if req.PointID, err = c.optionalUint("point_id"); err != nil {
		return req, err
	}
	if v := c.GetString("is_active"); v != "" {
		active, perr := strconv.ParseBool(v)
		if perr != nil {
			return req, errors.NewInvalidInputError("is_active", "must be a boolean")
		}
		req.IsActive = &active
	}
	if req.Page, err = c.GetInt("page", 1); err != nil {
		return req, errors.NewInvalidInputError("page", "must be an integer")
	}
	if req.PageSize, err = c.GetInt("page_size", 10); err != nil {
		return req, errors.NewInvalidInputError("page_size", "must be an integer")
	}
	return req, nil
}

func (c *QAController) optionalUint(key string) (*uint, error) {
	v := c.GetString(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, errors.NewInvalidInputError(key, "must be a non-negative integer")
	}
	u := uint(n)
	return &u, nil
}
