package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/helpdesk/internal/services"
	"github.com/yoockh/helpdesk/internal/utils"
)

type KBHandler struct {
	svc services.KBService
}

func NewKBHandler(svc services.KBService) *KBHandler {
	return &KBHandler{svc: svc}
}

type CreateFolderRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name" binding:"required"`
}

type RenameRequest struct {
	NewName string `json:"newName" binding:"required"`
}

func (h *KBHandler) Structure(c *gin.Context) {
	tree, err := h.svc.Tree(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"knowledgeBase": tree})
}

func (h *KBHandler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "KBHandler.CreateFolder", "name is required", err))
		return
	}
	n, err := h.svc.CreateFolder(c.Request.Context(), req.ParentID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"folder": n})
}

func (h *KBHandler) Upload(c *gin.Context) {
	const op = "KBHandler.Upload"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxUploadBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file is required", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read upload", err))
		return
	}
	defer f.Close()

	doc, err := h.svc.Upload(c.Request.Context(),
		c.PostForm("folderId"),
		fh.Filename,
		fh.Header.Get("Content-Type"),
		c.PostForm("category"),
		f,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"document": doc})
}

func (h *KBHandler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *KBHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "KBHandler.Rename", "newName is required", err))
		return
	}
	n, err := h.svc.Rename(c.Request.Context(), c.Param("id"), req.NewName)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"document": n})
}

func (h *KBHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	ok(c, nil)
}

func (h *KBHandler) Download(c *gin.Context) {
	u, err := h.svc.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, u)
}
