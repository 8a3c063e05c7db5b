package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilm/fuzzy"
	"github.com/valyala/fasthttp"

	"github.com/madpools/calcutta/backend/models"
	"github.com/madpools/calcutta/backend/utils"
	"github.com/madpools/calcutta/calcutta/auction"
	dbmodels "github.com/madpools/calcutta/calcutta/database/models"
	"github.com/madpools/calcutta/calcutta/logger"
	"github.com/madpools/calcutta/calcutta/payout"
)

// API holds the gateway's handle on the engines and read stores.
type API struct {
	coordinator *auction.Coordinator
	engine      *payout.Engine
	store       auction.Store
	payoutStore payout.Store
	hub         *auction.Hub
}

func NewAPI(coordinator *auction.Coordinator, engine *payout.Engine, store auction.Store, payoutStore payout.Store, hub *auction.Hub) *API {
	return &API{
		coordinator: coordinator,
		engine:      engine,
		store:       store,
		payoutStore: payoutStore,
		hub:         hub,
	}
}

// sendDomainError maps engine errors onto HTTP responses. Validation
// rejections and version conflicts are expected traffic, not faults.
func sendDomainError(c *fiber.Ctx, err error) error {
	if ve, ok := auction.AsValidation(err); ok {
		return utils.SendBadRequest(c, string(ve.Code), ve.Message)
	}
	if auction.IsConflict(err) {
		return utils.SendConflict(c, string(auction.ReasonStaleVersion), err.Error())
	}
	if err == auction.ErrAlreadySettled {
		return utils.SendConflict(c, "ALREADY_SETTLED", err.Error())
	}
	if dbmodels.IsNotFound(err) {
		return utils.SendNotFound(c, err.Error())
	}
	slog.Error("Request failed",
		slog.String("type", "error"),
		slog.String("path", c.Path()),
		slog.Any("error", err),
	)
	return utils.SendInternalServerError(c, "internal error")
}

func poolParam(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("poolID"), 10, 64)
}

func itemParam(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("itemID"), 10, 64)
}

// runCommand times a lifecycle command and writes the command audit log.
func runCommand(name string, poolID int64, fn func() error) error {
	start := time.Now()
	err := fn()
	logger.LogCommand(name, poolID, time.Since(start), err)
	return err
}

// Health reports gateway liveness.
func (a *API) Health(c *fiber.Ctx) error {
	return utils.SendSuccess(c, fiber.Map{"status": "ok"}, "")
}

// StartAuction opens bidding in a traditional pool.
func (a *API) StartAuction(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	if err := runCommand("start", poolID, func() error {
		return a.coordinator.Start(c.Context(), poolID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "auction started")
}

// PauseAuction freezes the session and the active countdown.
func (a *API) PauseAuction(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	if err := runCommand("pause", poolID, func() error {
		return a.coordinator.Pause(c.Context(), poolID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "auction paused")
}

// ResumeAuction re-opens a paused session.
func (a *API) ResumeAuction(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	if err := runCommand("resume", poolID, func() error {
		return a.coordinator.Resume(c.Context(), poolID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "auction resumed")
}

// NextItem closes the current item and activates the next one.
func (a *API) NextItem(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	if err := runCommand("next", poolID, func() error {
		return a.coordinator.Next(c.Context(), poolID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "advanced")
}

// SellNow force-closes the current item without advancing.
func (a *API) SellNow(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	if err := runCommand("sellNow", poolID, func() error {
		return a.coordinator.SellNow(c.Context(), poolID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "item closed")
}

// RevertSale undoes the most recent sale and reopens the item.
func (a *API) RevertSale(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	itemID, err := itemParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_ITEM_ID", "item id must be numeric")
	}
	if err := runCommand("revert", poolID, func() error {
		return a.coordinator.Revert(c.Context(), poolID, itemID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "sale reverted")
}

// RequeueItem puts an unsold item back at the end of the queue.
func (a *API) RequeueItem(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	itemID, err := itemParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_ITEM_ID", "item id must be numeric")
	}
	if err := runCommand("requeue", poolID, func() error {
		return a.coordinator.Requeue(c.Context(), poolID, itemID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "item requeued")
}

// PlaceBid submits one bid with the client's last observed version.
func (a *API) PlaceBid(c *fiber.Ctx) error {
	itemID, err := itemParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_ITEM_ID", "item id must be numeric")
	}

	var req models.BidRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "BAD_BODY", "body must be JSON with amount and version")
	}
	if req.Amount <= 0 {
		return utils.SendBadRequest(c, "BAD_AMOUNT", "amount must be positive")
	}

	userID, _ := c.Locals("userID").(string)
	res, err := a.coordinator.PlaceBid(c.Context(), itemID, userID, req.Amount, req.Version)
	if err != nil {
		return sendDomainError(c, err)
	}

	return utils.SendSuccess(c, models.BidResponse{
		ItemID:   res.Item.ID,
		Amount:   res.Item.CurrentBid,
		BidderID: res.Item.CurrentBidderID,
		Version:  res.Item.Version,
		Deadline: res.Deadline,
		Extended: res.Extended,
	}, "bid accepted")
}

// WheelInit shuffles the member cycle and item bag for a wheel-spin pool.
func (a *API) WheelInit(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	if err := runCommand("wheelInit", poolID, func() error {
		return a.coordinator.WheelInit(c.Context(), poolID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "wheel initialized")
}

// WheelSpin draws the next provisional assignment.
func (a *API) WheelSpin(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	spin, err := a.coordinator.WheelSpin(c.Context(), poolID)
	if err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, spin, "spin drawn")
}

// WheelConfirm settles the pending spin.
func (a *API) WheelConfirm(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	if err := runCommand("wheelConfirm", poolID, func() error {
		return a.coordinator.WheelConfirm(c.Context(), poolID)
	}); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "spin confirmed")
}

// PoolState returns the re-sync snapshot clients use after missing events.
func (a *API) PoolState(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}

	pool, err := a.store.Pool(c.Context(), poolID)
	if err != nil {
		return sendDomainError(c, err)
	}
	session, err := a.store.Session(c.Context(), poolID)
	if err != nil {
		if !dbmodels.IsNotFound(err) {
			return sendDomainError(c, err)
		}
		session = &dbmodels.AuctionSession{PoolID: poolID, Status: dbmodels.SessionNotStarted}
	}
	items, err := a.store.Items(c.Context(), poolID)
	if err != nil {
		return sendDomainError(c, err)
	}

	state := models.PoolStateResponse{
		PoolID:        pool.ID,
		Mode:          string(pool.Mode),
		SessionStatus: string(session.Status),
		TotalPot:      pool.TotalPot,
	}
	for _, item := range items {
		switch item.Status {
		case dbmodels.ItemPending:
			state.ItemsPending++
		case dbmodels.ItemSold:
			state.ItemsSold++
		case dbmodels.ItemUnsold:
			state.ItemsUnsold++
		}
		if item.ID == session.CurrentItemID {
			state.CurrentItem = itemSummary(item)
		}
	}
	return utils.SendSuccess(c, state, "")
}

type itemSource []*dbmodels.AuctionItem

func (s itemSource) String(i int) string { return s[i].TeamName }
func (s itemSource) Len() int            { return len(s) }

// PoolItems lists a pool's items, optionally filtered by a fuzzy team-name
// search.
func (a *API) PoolItems(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}

	items, err := a.store.Items(c.Context(), poolID)
	if err != nil {
		return sendDomainError(c, err)
	}

	if search := c.Query("search"); search != "" {
		matches := fuzzy.FindFrom(search, itemSource(items))
		filtered := make([]*dbmodels.AuctionItem, 0, len(matches))
		for _, m := range matches {
			filtered = append(filtered, items[m.Index])
		}
		items = filtered
	}

	summaries := make([]*models.ItemSummary, len(items))
	for i, item := range items {
		summaries[i] = itemSummary(item)
	}
	return utils.SendSuccess(c, summaries, "")
}

// ItemBids lists the bid history for one item, newest first.
func (a *API) ItemBids(c *fiber.Ctx) error {
	itemID, err := itemParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_ITEM_ID", "item id must be numeric")
	}
	bids, err := a.store.BidsForItem(c.Context(), itemID)
	if err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, bids, "")
}

// PoolMembers lists budgets, spend, and payout balances for a pool.
func (a *API) PoolMembers(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	members, err := a.store.Members(c.Context(), poolID)
	if err != nil {
		return sendDomainError(c, err)
	}

	summaries := make([]models.MemberSummary, len(members))
	for i, m := range members {
		summaries[i] = models.MemberSummary{
			UserID:          m.UserID,
			RemainingBudget: m.RemainingBudget,
			TotalSpent:      m.TotalSpent,
			Balance:         m.Balance,
		}
	}
	return utils.SendSuccess(c, summaries, "")
}

// PoolRules lists a pool's payout rules along with whether they validate.
func (a *API) PoolRules(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}
	rules, err := a.payoutStore.Rules(c.Context(), poolID)
	if err != nil {
		return sendDomainError(c, err)
	}

	resp := fiber.Map{"rules": rules, "valid": true}
	if err := payout.ValidateRules(rules); err != nil {
		resp["valid"] = false
		resp["validationError"] = err.Error()
	}
	return utils.SendSuccess(c, resp, "")
}

// PostGameResult ingests one tournament game result from the feed.
func (a *API) PostGameResult(c *fiber.Ctx) error {
	var result dbmodels.GameResult
	if err := c.BodyParser(&result); err != nil {
		return utils.SendBadRequest(c, "BAD_BODY", "body must be a JSON game result")
	}
	if result.GameID == "" || result.TournamentID == "" || result.WinnerTeamID == "" {
		return utils.SendBadRequest(c, "BAD_RESULT", "gameId, tournamentId, and winnerId are required")
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now().UTC()
	}

	if err := a.engine.ProcessGameResult(c.Context(), result); err != nil {
		return sendDomainError(c, err)
	}
	return utils.SendSuccess(c, nil, "result processed")
}

// StreamEvents pushes a pool's event stream over SSE.
func (a *API) StreamEvents(c *fiber.Ctx) error {
	poolID, err := poolParam(c)
	if err != nil {
		return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
	}

	ch, cancel := a.hub.Subscribe(poolID)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for event := range ch {
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

func itemSummary(item *dbmodels.AuctionItem) *models.ItemSummary {
	s := &models.ItemSummary{
		ID:              item.ID,
		TeamID:          item.TeamID,
		TeamName:        item.TeamName,
		Status:          string(item.Status),
		QueueOrder:      item.QueueOrder,
		StartingBid:     item.StartingBid,
		CurrentBid:      item.CurrentBid,
		CurrentBidderID: item.CurrentBidderID,
		Version:         item.Version,
		WinnerID:        item.WinnerID,
		WinningBid:      item.WinningBid,
	}
	if !item.TimerDeadline.IsZero() {
		deadline := item.TimerDeadline
		s.TimerDeadline = &deadline
	}
	return s
}
