// Package httpapi is the REST surface: users/leaderboard, matchmaking, game
// reads, moves and chat. The authentication collaborator in front of the
// server supplies the opaque user identity via the X-User-Id header; handlers
// only consume it for ownership checks.
package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/xo-online/xo-server/internal/board"
	"github.com/xo-online/xo-server/internal/chat"
	"github.com/xo-online/xo-server/internal/game"
	"github.com/xo-online/xo-server/internal/match"
	"github.com/xo-online/xo-server/internal/rating"
)

var validate = validator.New()

type Handler struct {
	games *game.Manager
	coord *match.Coordinator
	users rating.Store
	chats *chat.Service
}

func NewHandler(games *game.Manager, coord *match.Coordinator, users rating.Store, chats *chat.Service) *Handler {
	return &Handler{games: games, coord: coord, users: users, chats: chats}
}

// NewApp builds the Fiber application with the full route table.
func NewApp(h *Handler, allowOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-User-Id",
	}))

	app.Get("/health", h.Health)

	app.Get("/users", h.ListUsers)
	app.Get("/users/:id", requireUser, h.GetUser)
	app.Post("/users", requireUser, h.CreateUser)

	app.Post("/match", requireUser, h.FindMatch)
	app.Get("/games/:id", h.GetGame)
	app.Post("/games/:id/join", requireUser, h.JoinGame)
	app.Post("/games/:id/moves", requireUser, h.SubmitMove)
	app.Post("/games/:id/abandon", requireUser, h.AbandonGame)

	app.Get("/games/:id/chat", requireUser, h.ChatHistory)
	app.Post("/games/:id/chat", requireUser, h.PostChat)

	return app
}

// requireUser rejects requests without an identity header.
func requireUser(c *fiber.Ctx) error {
	if strings.TrimSpace(c.Get("X-User-Id")) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error: "missing identity",
			Code:  CodeUnauthorized,
		})
	}
	return c.Next()
}

func userID(c *fiber.Ctx) string { return strings.TrimSpace(c.Get("X-User-Id")) }

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.users.ListByRating(c.Context())
	if err != nil {
		return internalError(c, err)
	}
	if users == nil {
		users = []rating.User{}
	}
	return c.JSON(users)
}

func (h *Handler) GetUser(c *fiber.Ctx) error {
	u, err := h.users.GetUser(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, rating.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error: "user not found",
				Code:  CodeNotFound,
			})
		}
		return internalError(c, err)
	}
	return c.JSON(u)
}

// CreateUser is idempotent: an existing user is returned untouched.
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := parseAndValidate(c, &req); err != nil {
		return invalidRequest(c, err)
	}
	u, err := h.users.EnsureUser(c.Context(), rating.User{
		ID:        userID(c),
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(u)
}

func (h *Handler) FindMatch(c *fiber.Ctx) error {
	g, err := h.coord.FindOrCreate(c.Context(), userID(c))
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(MatchResponse{GameID: g.ID, Status: g.Status, Game: game.SnapshotFor(g)})
}

func (h *Handler) GetGame(c *fiber.Ctx) error {
	g, err := h.games.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.domainError(c, c.Params("id"), err)
	}
	return c.JSON(game.SnapshotFor(g))
}

func (h *Handler) JoinGame(c *fiber.Ctx) error {
	g, err := h.coord.JoinByCode(c.Context(), userID(c), c.Params("id"))
	if err != nil {
		return h.domainError(c, c.Params("id"), err)
	}
	return c.JSON(game.SnapshotFor(g))
}

func (h *Handler) SubmitMove(c *fiber.Ctx) error {
	var req MoveRequest
	if err := parseAndValidate(c, &req); err != nil {
		return invalidRequest(c, err)
	}
	g, err := h.games.SubmitMove(c.Context(), c.Params("id"), userID(c), *req.Index)
	if err != nil {
		return h.domainError(c, c.Params("id"), err)
	}
	return c.JSON(game.SnapshotFor(g))
}

// AbandonGame is the disconnect path for clients that can still say goodbye.
func (h *Handler) AbandonGame(c *fiber.Ctx) error {
	var req AbandonRequest
	if len(c.Body()) > 0 {
		if err := parseAndValidate(c, &req); err != nil {
			return invalidRequest(c, err)
		}
	}
	cur, err := h.games.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.domainError(c, c.Params("id"), err)
	}
	// Only participants may force-finish; same guard as the ws disconnect path.
	actor := userID(c)
	if cur.Player1ID != actor && cur.Player2ID != actor {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error: "not a participant in this game",
			Code:  CodeForbidden,
		})
	}
	reason := game.EndDisconnect
	if req.Reason == string(game.EndTimeout) {
		reason = game.EndTimeout
	}
	g, err := h.games.Abandon(c.Context(), c.Params("id"), reason)
	if err != nil {
		return h.domainError(c, c.Params("id"), err)
	}
	return c.JSON(game.SnapshotFor(g))
}

func (h *Handler) ChatHistory(c *fiber.Ctx) error {
	msgs, err := h.chats.History(c.Context(), c.Params("id"), c.QueryInt("limit"))
	if err != nil {
		return internalError(c, err)
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return c.JSON(msgs)
}

func (h *Handler) PostChat(c *fiber.Ctx) error {
	var req ChatPostRequest
	if err := parseAndValidate(c, &req); err != nil {
		return invalidRequest(c, err)
	}
	msg, err := h.chats.Append(c.Context(), c.Params("id"), userID(c), req.Content)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(msg)
}

// domainError maps state-machine failures to statuses. Stale-client failures
// carry a fresh snapshot so the caller reconciles instead of retrying blind.
func (h *Handler) domainError(c *fiber.Ctx, gameID string, err error) error {
	switch {
	case errors.Is(err, board.ErrIllegalMove):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: err.Error(),
			Code:  CodeIllegalMove,
		})
	case errors.Is(err, game.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error: err.Error(),
			Code:  CodeNotFound,
		})
	case errors.Is(err, game.ErrAlreadyFull):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error: err.Error(),
			Code:  CodeAlreadyFull,
		})
	case errors.Is(err, game.ErrSelfJoin):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error: err.Error(),
			Code:  CodeSelfJoin,
		})
	case errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrGameNotActive),
		errors.Is(err, game.ErrConflict):
		resp := ErrorResponse{Error: err.Error(), Code: staleCode(err)}
		if fresh, gerr := h.games.Get(c.Context(), gameID); gerr == nil {
			snap := game.SnapshotFor(fresh)
			resp.Game = &snap
		}
		return c.Status(fiber.StatusConflict).JSON(resp)
	}
	return internalError(c, err)
}

func staleCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.Is(err, game.ErrGameNotActive):
		return CodeNotActive
	}
	return CodeConflict
}

// parseAndValidate decodes and validates the request body. It never writes
// the response itself; callers turn a non-nil error into a 400 via
// invalidRequest and stop.
func parseAndValidate(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return errBadBody
	}
	return validate.Struct(req)
}

var errBadBody = errors.New("invalid request body")

func invalidRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: validationMessage(err),
		Code:  CodeInvalid,
	})
}

// validationMessage flattens validator output into a stable client-facing
// message instead of leaking struct field paths.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "max":
		return field + " is out of range"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "url":
		return field + " must be a valid URL"
	}
	return field + " is invalid"
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: err.Error(),
		Code:  CodeInternal,
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error(), Code: CodeInternal})
}
