package controller

import (
	"context"
	"encoding/json"
	"errors"

	"course-advisor-be/internal/dto"
	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/internal/pkg/serverutils"
	"course-advisor-be/internal/service"
	"course-advisor-be/pkg/advisor"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const SessionIdHeader = "X-Session-Id"

type IAdvisorController interface {
	RegisterRoutes(r fiber.Router, middlewares ...fiber.Handler)
	Recommend(ctx *fiber.Ctx) error
	Chat(ctx *fiber.Ctx) error
	ExpireSession(ctx *fiber.Ctx) error
	ChatSocket(ctx *fiber.Ctx) error
}

type advisorController struct {
	advisorService service.IAdvisorService
	logger         logger.ILogger
}

func NewAdvisorController(advisorService service.IAdvisorService, log logger.ILogger) IAdvisorController {
	return &advisorController{
		advisorService: advisorService,
		logger:         log,
	}
}

func (c *advisorController) RegisterRoutes(r fiber.Router, middlewares ...fiber.Handler) {
	h := r.Group("/advisor/v1")
	for _, m := range middlewares {
		h.Use(m)
	}
	h.Post("recommendations", c.Recommend)
	h.Post("chat", c.Chat)
	h.Delete("sessions/:id", c.ExpireSession)
	h.Get("chat/ws", c.ChatSocket)
}

// Recommend runs on ctx.UserContext(). fasthttp never cancels it on client
// disconnect, so the orchestrator's provider timeouts are what bound the call.
func (c *advisorController) Recommend(ctx *fiber.Ctx) error {
	var req dto.RecommendRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.advisorService.Recommend(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	c.audit(ctx, "Recommendations served", req.SessionId, res.SearchMethod)

	return ctx.JSON(serverutils.SuccessResponse("Success get recommendations", res))
}

func (c *advisorController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.advisorService.Chat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	c.audit(ctx, "Chat reply served", res.SessionId, res.SearchMethod)

	ctx.Set(SessionIdHeader, res.SessionId)
	return ctx.JSON(serverutils.SuccessResponse("Success chat", res))
}

func (c *advisorController) ExpireSession(ctx *fiber.Ctx) error {
	if err := c.advisorService.ExpireSession(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success expire session", nil))
}

// audit records who was served what; user_id is set only for authenticated
// callers.
func (c *advisorController) audit(ctx *fiber.Ctx, message, sessionId, searchMethod string) {
	details := map[string]interface{}{
		"session_id":    sessionId,
		"search_method": searchMethod,
	}
	if userID, ok := ctx.Locals("user_id").(string); ok {
		details["user_id"] = userID
	}
	c.logger.Info("HTTP", message, details)
}

// ChatSocket upgrades to a websocket where each text frame is a ChatRequest
// and each reply is the same envelope the REST endpoint returns. A session id
// generated for the first frame is reused for the rest of the connection.
func (c *advisorController) ChatSocket(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	parent := context.WithoutCancel(ctx.UserContext())

	return websocket.New(func(conn *websocket.Conn) {
		connCtx, cancel := context.WithCancel(parent)
		defer cancel()

		var sessionId string
		for {
			msgType, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			reply := c.handleFrame(connCtx, raw, &sessionId)
			if err := conn.WriteJSON(reply); err != nil {
				c.logger.Warn("HTTP", "Websocket write failed", map[string]interface{}{
					"session_id": sessionId,
					"error":      err.Error(),
				})
				return
			}
		}
	})(ctx)
}

func (c *advisorController) handleFrame(ctx context.Context, raw []byte, sessionId *string) serverutils.Response {
	var req dto.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return serverutils.ErrorResponse(fiber.StatusBadRequest, "Invalid message frame", nil)
	}
	if req.SessionId == "" {
		req.SessionId = *sessionId
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return serverutils.ErrorResponse(fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	res, err := c.advisorService.Chat(ctx, &req)
	if err != nil {
		var verr *advisor.ValidationError
		if errors.As(err, &verr) {
			return serverutils.ErrorResponse(fiber.StatusBadRequest, verr.Error(), nil)
		}
		c.logger.Error("HTTP", "Websocket chat failed", map[string]interface{}{
			"session_id": req.SessionId,
			"error":      err.Error(),
		})
		return serverutils.ErrorResponse(fiber.StatusInternalServerError, "Internal server error", nil)
	}

	*sessionId = res.SessionId
	return serverutils.SuccessResponse("Success chat", res)
}
