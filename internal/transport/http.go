package transport

import (
	"errors"
	"log/slog"
	"time"

	"whatsapp-broadcast/internal/app"
	"whatsapp-broadcast/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler holds all HTTP handlers for the campaign service.
type Handler struct {
	svc *app.CampaignService
	log *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(svc *app.CampaignService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts all routes onto the given Fiber router. dispatchLimit, when
// non-nil, guards campaign creation only; reads keep the global limit.
func (h *Handler) Register(router fiber.Router, dispatchLimit fiber.Handler) {
	if dispatchLimit != nil {
		router.Post("/campaigns", dispatchLimit, h.CreateCampaign)
	} else {
		router.Post("/campaigns", h.CreateCampaign)
	}
	router.Get("/campaigns/:id", h.GetCampaign)
	router.Post("/campaigns/:id/stop", h.StopCampaign)
	router.Post("/campaigns/:id/resume", h.ResumeCampaign)
	router.Post("/blacklist", h.AddToBlacklist)
	router.Delete("/blacklist/:phone", h.RemoveFromBlacklist)
}

// ── Campaign API ──────────────────────────────────────────────────────────────

type createCampaignRequest struct {
	Name        string   `json:"name"`
	Template    string   `json:"template"`
	Recipients  []string `json:"recipients"`
	SessionName string   `json:"session_name"`
	Test        bool     `json:"test"`
	BatchSize   int      `json:"batch_size"`
}

type createCampaignResponse struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	Recipients int    `json:"recipients"`
	Dropped    int    `json:"dropped"`
}

// CreateCampaign validates a campaign request and enqueues the run.
//
// POST /campaigns
// Body: { "name": "...", "template": "...", "recipients": [...], "session_name": "...", "test": false }
func (h *Handler) CreateCampaign(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.Name == "" || len(req.Recipients) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and recipients are required"})
	}

	campaign, err := h.svc.StartCampaign(c.Context(), app.StartCampaignRequest{
		Name:        req.Name,
		Template:    req.Template,
		Recipients:  req.Recipients,
		SessionName: req.SessionName,
		Test:        req.Test,
		BatchSize:   req.BatchSize,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyTemplate),
			errors.Is(err, domain.ErrInvalidRecipients),
			errors.Is(err, domain.ErrNoTransport):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			h.log.Error("create campaign", "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(createCampaignResponse{
		CampaignID: campaign.ID.String(),
		Status:     string(campaign.Status),
		Recipients: campaign.Recipients,
		Dropped:    len(req.Recipients) - campaign.Recipients,
	})
}

type campaignStatusResponse struct {
	CampaignID  string         `json:"campaign_id"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	SessionName string         `json:"session_name"`
	Recipients  int            `json:"recipients"`
	Sent        int            `json:"sent"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	Stats       map[string]int `json:"stats"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// GetCampaign returns the campaign counters plus totals recomputed from the
// sent records, so an operator can spot drift.
//
// GET /campaigns/:id
func (h *Handler) GetCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id must be a valid UUID"})
	}

	status, err := h.svc.GetCampaignStatus(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "campaign not found"})
		}
		h.log.Error("get campaign", "campaign_id", id, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	campaign := status.Campaign
	return c.JSON(campaignStatusResponse{
		CampaignID:  campaign.ID.String(),
		Name:        campaign.Name,
		Status:      string(campaign.Status),
		SessionName: campaign.SessionName,
		Recipients:  campaign.Recipients,
		Sent:        campaign.Sent,
		Failed:      campaign.Failed,
		Skipped:     campaign.Skipped,
		Stats:       status.Stats,
		CreatedAt:   campaign.CreatedAt,
		CompletedAt: campaign.CompletedAt,
	})
}

// StopCampaign requests a pause; the worker honors it at the next recipient.
//
// POST /campaigns/:id/stop
func (h *Handler) StopCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id must be a valid UUID"})
	}

	if err := h.svc.StopCampaign(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrCampaignNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "campaign not found"})
		case errors.Is(err, domain.ErrInvalidStatus):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "campaign is not running"})
		default:
			h.log.Error("stop campaign", "campaign_id", id, "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
	}

	return c.JSON(fiber.Map{"campaign_id": id.String(), "status": string(domain.StatusPaused)})
}

// ResumeCampaign reactivates a paused campaign from its persisted cursor.
//
// POST /campaigns/:id/resume
func (h *Handler) ResumeCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id must be a valid UUID"})
	}

	if err := h.svc.ResumeCampaign(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrCampaignNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "campaign not found"})
		case errors.Is(err, domain.ErrInvalidStatus):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "campaign is not paused"})
		default:
			h.log.Error("resume campaign", "campaign_id", id, "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
	}

	return c.JSON(fiber.Map{"campaign_id": id.String(), "status": string(domain.StatusActive)})
}

// ── Blacklist API ─────────────────────────────────────────────────────────────

type blacklistRequest struct {
	Phone      string `json:"phone"`
	Reason     string `json:"reason"`
	CampaignID string `json:"campaign_id"`
}

// AddToBlacklist suppresses a number across all future campaigns.
//
// POST /blacklist
// Body: { "phone": "...", "reason": "...", "campaign_id": "..." }
func (h *Handler) AddToBlacklist(c *fiber.Ctx) error {
	var req blacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone is required"})
	}

	var campaignID *uuid.UUID
	if req.CampaignID != "" {
		id, err := uuid.Parse(req.CampaignID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "campaign_id must be a valid UUID"})
		}
		campaignID = &id
	}

	if err := h.svc.Blacklist(c.Context(), req.Phone, req.Reason, campaignID); err != nil {
		if errors.Is(err, domain.ErrInvalidRecipients) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone is not a valid number"})
		}
		h.log.Error("add to blacklist", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveFromBlacklist reactivates a suppressed number.
//
// DELETE /blacklist/:phone
func (h *Handler) RemoveFromBlacklist(c *fiber.Ctx) error {
	phone := c.Params("phone")
	if phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone is required"})
	}

	if err := h.svc.Unblacklist(c.Context(), phone); err != nil {
		if errors.Is(err, domain.ErrInvalidRecipients) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone is not a valid number"})
		}
		h.log.Error("remove from blacklist", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
