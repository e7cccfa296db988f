package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/modfetch/internal/app"
	"github.com/datallboy/modfetch/internal/domain"
)

type QueueController struct {
	App *app.Context
}

// List returns every queued transfer in enqueue order
func (ctrl *QueueController) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Queue.List())
}

func (ctrl *QueueController) Get(c *echo.Context) error {
	item, err := ctrl.App.Queue.Get(c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (ctrl *QueueController) Enqueue(c *echo.Context) error {
	var req EnqueueRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
	}

	if req.OutputPath == "" && req.URL != "" {
		name := req.FileName
		if name == "" {
			name = fileNameFromURL(req.URL)
		}
		if name != "" {
			req.OutputPath = filepath.Join(ctrl.App.Config.Download.OutDir, name)
		}
	}

	id, err := ctrl.App.Queue.Enqueue(domain.QueuedTransfer{
		URL:        req.URL,
		OutputPath: req.OutputPath,
		FileName:   req.FileName,
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
		Options:    req.Options,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, EnqueueResponse{ID: id})
}

func (ctrl *QueueController) Remove(c *echo.Context) error {
	if err := ctrl.App.Queue.Remove(c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *QueueController) Pause(c *echo.Context) error {
	if err := ctrl.App.Queue.Pause(c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *QueueController) Resume(c *echo.Context) error {
	if err := ctrl.App.Queue.Resume(c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *QueueController) Clear(c *echo.Context) error {
	ctrl.App.Queue.Clear()
	return c.NoContent(http.StatusNoContent)
}

// errorJSON maps queue errors onto status codes
func errorJSON(c *echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRequest):
		code = http.StatusBadRequest
	}
	return c.JSON(code, ErrorResponse{Error: err.Error()})
}

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
