package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/indexer"
	"github.com/ddlab/luckchain/vm/modules/lottery"
)

// defaultHistoryLimit bounds getLotteryHistory when the client does not ask
// for a specific page size.
const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 100
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getPhase":
		return h.getPhase(req)

	case "getCurrentSession":
		return h.getCurrentSession(req)

	case "getParticipant":
		return h.getParticipant(req)

	case "getParticipants":
		return h.getParticipants(req)

	case "getLotteryResult":
		return h.getLotteryResult(req)

	case "getLotteryHistory":
		return h.getLotteryHistory(req)

	case "getSessionsByPlayer":
		return h.getSessionsByPlayer(req)

	case "getConfig":
		return h.getConfig(req)

	case "getStats":
		return h.getStats(req)

	case "getVersion":
		return okResponse(req.ID, map[string]string{
			"name":    core.BuildName,
			"version": core.BuildVersion,
		})

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

// getPhase reports the phase the next block will execute in, so a client can
// decide whether a bet or reveal sent now will land inside its window.
func (h *Handler) getPhase(req Request) Response {
	return okResponse(req.ID, lottery.InfoAt(h.bc.Height()+1))
}

func (h *Handler) getCurrentSession(req Request) Response {
	sess, err := h.state.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeInternalError, "no session open")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, sess)
}

func (h *Handler) getParticipant(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	sess, err := h.state.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeInternalError, "no session open")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	for i := range sess.Participants {
		if sess.Participants[i].Address == params.Address {
			return okResponse(req.ID, sess.Participants[i])
		}
	}
	return errResponse(req.ID, CodeInternalError, "participant not found")
}

func (h *Handler) getParticipants(req Request) Response {
	sess, err := h.state.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		return okResponse(req.ID, []core.Participant{})
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, sess.Participants)
}

func (h *Handler) getLotteryResult(req Request) Response {
	var params struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.SessionID == "" {
		return errResponse(req.ID, CodeInvalidParams, "session_id is required")
	}
	result, err := h.state.GetResult(params.SessionID)
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeInternalError, "result not found")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, result)
}

func (h *Handler) getLotteryHistory(req Request) Response {
	var params struct {
		Limit int `json:"limit"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, err.Error())
		}
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	ids, err := h.indexer.GetHistory(limit)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	results := make([]*core.LotteryResult, 0, len(ids))
	for _, id := range ids {
		r, err := h.state.GetResult(id)
		if err != nil {
			continue
		}
		results = append(results, r)
	}
	return okResponse(req.ID, results)
}

func (h *Handler) getSessionsByPlayer(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	ids, err := h.indexer.GetSessionsByPlayer(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getConfig(req Request) Response {
	cfg, err := h.state.GetLotteryConfig()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, cfg)
}

func (h *Handler) getStats(req Request) Response {
	stats, err := h.state.GetStats()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, stats)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
