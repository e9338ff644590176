package httpapi

import "github.com/xo-online/xo-server/internal/game"

// ErrorResponse is the JSON error envelope. Game carries a fresh snapshot on
// stale-state conflicts so clients reconcile without an extra round trip.
type ErrorResponse struct {
	Error string         `json:"error"`
	Code  string         `json:"code,omitempty"`
	Game  *game.Snapshot `json:"game,omitempty"`
}

// Error codes surfaced to clients.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeIllegalMove  = "ILLEGAL_MOVE"
	CodeNotYourTurn  = "NOT_YOUR_TURN"
	CodeNotActive    = "GAME_NOT_ACTIVE"
	CodeAlreadyFull  = "ALREADY_FULL"
	CodeSelfJoin     = "SELF_JOIN"
	CodeConflict     = "CONFLICT"
	CodeInvalid      = "INVALID_REQUEST"
	CodeInternal     = "INTERNAL"
)

type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,min=1,max=32"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
}

type MoveRequest struct {
	Index *int `json:"index" validate:"required,min=0,max=8"`
}

type AbandonRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=timeout disconnect"`
}

type ChatPostRequest struct {
	Content string `json:"content" validate:"required,min=1,max=500"`
}

type MatchResponse struct {
	GameID string        `json:"gameId"`
	Status game.Status   `json:"status"`
	Game   game.Snapshot `json:"game"`
}
