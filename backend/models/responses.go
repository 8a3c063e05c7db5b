package models

import (
	"time"
)

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error response
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// NewSuccessResponse creates a successful API response
func NewSuccessResponse(data interface{}, message string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorResponse creates an error API response
func NewErrorResponse(code, message string, details map[string]string) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}
}

// BidRequest is the body of a bid submission
type BidRequest struct {
	Amount  int64 `json:"amount"`
	Version int64 `json:"version"`
}

// BidResponse echoes the accepted bid state back to the client
type BidResponse struct {
	ItemID   int64     `json:"itemId"`
	Amount   int64     `json:"amount"`
	BidderID string    `json:"bidderId"`
	Version  int64     `json:"version"`
	Deadline time.Time `json:"deadline"`
	Extended bool      `json:"extended"`
}

// PoolStateResponse is the re-sync snapshot for one pool
type PoolStateResponse struct {
	PoolID        int64        `json:"poolId"`
	Mode          string       `json:"mode"`
	SessionStatus string       `json:"sessionStatus"`
	TotalPot      int64        `json:"totalPot"`
	CurrentItem   *ItemSummary `json:"currentItem,omitempty"`
	ItemsPending  int          `json:"itemsPending"`
	ItemsSold     int          `json:"itemsSold"`
	ItemsUnsold   int          `json:"itemsUnsold"`
}

// ItemSummary is the wire shape of one auction item
type ItemSummary struct {
	ID              int64      `json:"id"`
	TeamID          string     `json:"teamId"`
	TeamName        string     `json:"teamName"`
	Status          string     `json:"status"`
	QueueOrder      int        `json:"queueOrder"`
	StartingBid     int64      `json:"startingBid"`
	CurrentBid      int64      `json:"currentBid"`
	CurrentBidderID string     `json:"currentBidderId,omitempty"`
	Version         int64      `json:"version"`
	TimerDeadline   *time.Time `json:"timerDeadline,omitempty"`
	WinnerID        string     `json:"winnerId,omitempty"`
	WinningBid      int64      `json:"winningBid,omitempty"`
}

// MemberSummary is the wire shape of one pool member
type MemberSummary struct {
	UserID          string `json:"userId"`
	RemainingBudget int64  `json:"remainingBudget"`
	TotalSpent      int64  `json:"totalSpent"`
	Balance         int64  `json:"balance"`
}
