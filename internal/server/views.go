package server

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/collection"
	"nftmint/internal/explorer"
	"nftmint/internal/jobstore"
	"nftmint/internal/mint"
	"nftmint/internal/session"
)

type sessionView struct {
	State         string `json:"state"`
	Account       string `json:"account,omitempty"`
	AccountShort  string `json:"accountShort,omitempty"`
	AccountURL    string `json:"accountUrl,omitempty"`
	Error         string `json:"error,omitempty"`
	Contract      string `json:"contract"`
	ContractShort string `json:"contractShort"`
	ContractURL   string `json:"contractUrl,omitempty"`
	PriceWei      string `json:"priceWei"`
	ImageURI      string `json:"imageUri,omitempty"`
}

type jobView struct {
	RequestID      string    `json:"requestId"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Account        string    `json:"account"`
	AccountShort   string    `json:"accountShort"`
	ValueWei       string    `json:"valueWei"`
	State          string    `json:"state"`
	TxHash         string    `json:"txHash,omitempty"`
	TxURL          string    `json:"txUrl,omitempty"`
	TokenID        string    `json:"tokenId,omitempty"`
	Cause          string    `json:"cause,omitempty"`
	Error          string    `json:"error,omitempty"`
	Abandoned      bool      `json:"abandoned,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type currentMintView struct {
	Job            *jobView `json:"job"`
	SuccessVisible bool     `json:"successVisible"`
}

type collectionView struct {
	Account     string    `json:"account,omitempty"`
	Tokens      []string  `json:"tokens"`
	Exact       bool      `json:"exact"`
	ImageURI    string    `json:"imageUri,omitempty"`
	RefreshedAt time.Time `json:"refreshedAt,omitempty"`
}

func (s *Server) sessionView(snap session.Snapshot) sessionView {
	cfg := s.app.Config
	contract := cfg.ContractAddress()
	v := sessionView{
		State:         snap.State.String(),
		Contract:      contract.Hex(),
		ContractShort: explorer.Short(contract),
		ContractURL:   s.links.Address(contract),
		PriceWei:      s.app.Mints.Price().String(),
		ImageURI:      cfg.Chain.ImageURI,
	}
	if snap.HasAccount() {
		v.Account = snap.Account.Hex()
		v.AccountShort = explorer.Short(snap.Account)
		v.AccountURL = s.links.Address(snap.Account)
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	return v
}

func (s *Server) jobFromLive(job mint.Job) jobView {
	v := jobView{
		RequestID:      job.RequestID,
		IdempotencyKey: job.IdempotencyKey,
		Account:        job.Account.Hex(),
		AccountShort:   explorer.Short(job.Account),
		State:          job.State.String(),
		TxURL:          s.links.Tx(job.TxHash),
		Cause:          string(job.Cause),
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if job.Value != nil {
		v.ValueWei = job.Value.String()
	}
	if job.HasTx() {
		v.TxHash = job.TxHash.Hex()
	}
	if job.TokenID != nil {
		v.TokenID = job.TokenID.String()
	}
	if job.Err != nil {
		v.Error = job.Err.Error()
	}
	return v
}

func (s *Server) jobFromRecord(rec jobstore.Record) jobView {
	account := common.HexToAddress(rec.Account)
	v := jobView{
		RequestID:      rec.RequestID,
		IdempotencyKey: rec.IdempotencyKey,
		Account:        account.Hex(),
		AccountShort:   explorer.Short(account),
		ValueWei:       rec.ValueWei,
		State:          rec.State,
		TxHash:         rec.TxHash,
		TokenID:        rec.TokenID,
		Cause:          rec.Cause,
		Error:          rec.Error,
		Abandoned:      rec.Abandoned,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if rec.TxHash != "" {
		v.TxURL = s.links.Tx(common.HexToHash(rec.TxHash))
	}
	return v
}

func (s *Server) collectionView(set collection.TokenSet) collectionView {
	v := collectionView{
		Tokens:      formatIDs(set.IDs),
		Exact:       set.Exact,
		ImageURI:    s.app.Config.Chain.ImageURI,
		RefreshedAt: set.RefreshedAt,
	}
	if set.Account != (common.Address{}) {
		v.Account = set.Account.Hex()
	}
	return v
}

func formatIDs(ids []*big.Int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
