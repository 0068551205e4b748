package rpc

import (
	"net/http"
)

type stakeSetParamsParams struct {
	Caller     string `json:"caller"`
	AprBps     uint64 `json:"aprBps"`
	MinSeconds uint64 `json:"minSeconds"`
	MaxSeconds uint64 `json:"maxSeconds"`
}

type stakePauseParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type stakeDepositParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type stakePositionParams struct {
	Caller string `json:"caller"`
	Index  uint64 `json:"index"`
}

type stakeOwnerParams struct {
	Owner string `json:"owner"`
}

type stakeWithdrawParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

func (s *Server) handleStakeSetParams(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakeSetParamsParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.engine.SetStakeParams(caller, params.AprBps, params.MinSeconds, params.MaxSeconds); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{
		"aprBps":     params.AprBps,
		"minSeconds": params.MinSeconds,
		"maxSeconds": params.MaxSeconds,
	})
}

func (s *Server) handleStakePause(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakePauseParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.engine.SetStakePaused(caller, params.Paused); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": params.Paused})
}

func (s *Server) handleStakeDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakeDepositParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	index, err := s.engine.StakeDeposit(caller, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveStakeDeposit()
	writeResult(w, req.ID, map[string]uint64{"index": index})
}

func (s *Server) handleStakeClaimReward(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakePositionParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := s.engine.StakeClaimReward(caller, params.Index)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"reward": bigString(amount)})
}

func (s *Server) handleStakeUnstake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakePositionParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	principal, reward, err := s.engine.StakeUnstake(caller, params.Index)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveUnstake()
	writeResult(w, req.ID, unstakeResult{
		Principal: bigString(principal),
		Reward:    bigString(reward),
	})
}

func (s *Server) handleStakePositions(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakeOwnerParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, err := decodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	positions, err := s.engine.StakePositions(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]stakePositionResult, 0, len(positions))
	for i, pos := range positions {
		result := stakePositionResult{
			Index:          uint64(i),
			Principal:      bigString(pos.Principal),
			StartTime:      pos.StartTime,
			ClaimedRewards: bigString(pos.ClaimedRewards),
			AprBps:         pos.AprBps,
			Active:         pos.Active,
		}
		if pos.Active {
			pending, err := s.engine.StakePendingReward(owner, uint64(i))
			if err != nil {
				writeEngineError(w, req.ID, err)
				return
			}
			result.PendingReward = bigString(pending)
		}
		results = append(results, result)
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleStakeWithdrawExcess(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakeWithdrawParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	to, err := decodeAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid destination address", err.Error())
		return
	}
	amount, err := s.engine.StakeWithdrawExcess(caller, to)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": bigString(amount)})
}
