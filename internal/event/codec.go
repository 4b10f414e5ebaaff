package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// Decoding errors.
var (
	// ErrUnknownKind is returned for an envelope whose kind is not handled.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrInvalidEvent is returned when an envelope or its params fail validation.
	ErrInvalidEvent = errors.New("invalid event")
)

// envelope is the JSON wire form of an event.
type envelope struct {
	Kind     Kind            `json:"kind"`
	TxHash   string          `json:"tx_hash"`
	LogIndex uint64          `json:"log_index"`
	Block    Block           `json:"block"`
	Address  string          `json:"address"`
	Params   json.RawMessage `json:"params"`
}

// NormalizeAddress returns the lowercase 0x form of a hex address.
func NormalizeAddress(s string) string {
	return strings.ToLower(common.HexToAddress(s).Hex())
}

// IsZeroAddress reports whether addr is the zero address.
func IsZeroAddress(addr string) bool {
	return common.HexToAddress(addr) == (common.Address{})
}

func normalizeHash(s string) (string, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: hash %q: %v", ErrInvalidEvent, s, err)
	}
	if len(b) != common.HashLength {
		return "", fmt.Errorf("%w: hash %q has %d bytes", ErrInvalidEvent, s, len(b))
	}
	return common.BytesToHash(b).Hex(), nil
}

// address decodes and normalizes a hex address param.
type address string

func (a *address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("%w: address %q", ErrInvalidEvent, s)
	}
	*a = address(NormalizeAddress(s))
	return nil
}

// uint256 decodes a decimal or 0x-hex integer given as a JSON string or number.
type uint256 struct {
	v *big.Int
}

func (u *uint256) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("%w: integer %q", ErrInvalidEvent, s)
	}
	u.v = v
	return nil
}

func (u uint256) toBig() *big.Int {
	if u.v == nil {
		return new(big.Int)
	}
	return u.v
}

// Decode parses one JSON envelope into a typed event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	meta, err := env.meta()
	if err != nil {
		return nil, err
	}

	ev, err := env.decodeParams(meta)
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", env.Kind, err)
	}
	return ev, nil
}

func (e *envelope) meta() (Meta, error) {
	if e.Kind == "" {
		return Meta{}, fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}
	txHash, err := normalizeHash(e.TxHash)
	if err != nil {
		return Meta{}, err
	}
	if e.Address != "" && !common.IsHexAddress(e.Address) {
		return Meta{}, fmt.Errorf("%w: address %q", ErrInvalidEvent, e.Address)
	}
	block := e.Block
	if block.Hash != "" {
		if block.Hash, err = normalizeHash(block.Hash); err != nil {
			return Meta{}, err
		}
	}
	m := Meta{
		Kind:     e.Kind,
		TxHash:   txHash,
		LogIndex: e.LogIndex,
		Block:    block,
	}
	if e.Address != "" {
		m.Address = NormalizeAddress(e.Address)
	}
	return m, nil
}

func (e *envelope) params(dst any) error {
	if len(e.Params) == 0 {
		return fmt.Errorf("%w: missing params", ErrInvalidEvent)
	}
	return json.Unmarshal(e.Params, dst)
}

func (e *envelope) decodeParams(meta Meta) (Event, error) {
	switch e.Kind {
	case KindTransfer, KindSubjectTokenTransfer:
		var p struct {
			From  address `json:"from"`
			To    address `json:"to"`
			Value uint256 `json:"value"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		if e.Kind == KindSubjectTokenTransfer {
			return &SubjectTokenTransfer{Meta: meta, From: string(p.From), To: string(p.To), Value: p.Value.toBig()}, nil
		}
		return &Transfer{Meta: meta, From: string(p.From), To: string(p.To), Value: p.Value.toBig()}, nil

	case KindAuctionNewSellOrder, KindAuctionCancellationSellOrder, KindAuctionClaimedFromOrder:
		var p struct {
			AuctionID  string  `json:"auction_id"`
			Subject    address `json:"subject"`
			UserID     uint256 `json:"user_id"`
			BuyAmount  uint256 `json:"buy_amount"`
			SellAmount uint256 `json:"sell_amount"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &AuctionIntent{
			Meta:       meta,
			AuctionID:  p.AuctionID,
			Subject:    string(p.Subject),
			UserID:     p.UserID.toBig(),
			BuyAmount:  p.BuyAmount.toBig(),
			SellAmount: p.SellAmount.toBig(),
		}, nil

	case KindTokenDeployed:
		var p struct {
			Token       address `json:"token"`
			Beneficiary address `json:"beneficiary"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &TokenDeployed{Meta: meta, Token: string(p.Token), Beneficiary: string(p.Beneficiary)}, nil

	case KindSubjectSharePurchased:
		var p struct {
			SubjectToken address `json:"subject_token"`
			Spender      address `json:"spender"`
			Beneficiary  address `json:"beneficiary"`
			Deposit      uint256 `json:"deposit"`
			Shares       uint256 `json:"shares"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &SubjectSharePurchased{
			Meta:         meta,
			SubjectToken: string(p.SubjectToken),
			Spender:      string(p.Spender),
			Beneficiary:  string(p.Beneficiary),
			Deposit:      p.Deposit.toBig(),
			Shares:       p.Shares.toBig(),
		}, nil

	case KindSubjectShareSold:
		var p struct {
			SubjectToken address `json:"subject_token"`
			Seller       address `json:"seller"`
			Beneficiary  address `json:"beneficiary"`
			Shares       uint256 `json:"shares"`
			Proceeds     uint256 `json:"proceeds"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &SubjectShareSold{
			Meta:         meta,
			SubjectToken: string(p.SubjectToken),
			Seller:       string(p.Seller),
			Beneficiary:  string(p.Beneficiary),
			Shares:       p.Shares.toBig(),
			Proceeds:     p.Proceeds.toBig(),
		}, nil

	case KindUpdateFees:
		var p struct {
			ProtocolBuyFeePct  uint256 `json:"protocol_buy_fee_pct"`
			ProtocolSellFeePct uint256 `json:"protocol_sell_fee_pct"`
			SubjectBuyFeePct   uint256 `json:"subject_buy_fee_pct"`
			SubjectSellFeePct  uint256 `json:"subject_sell_fee_pct"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &UpdateFees{
			Meta:               meta,
			ProtocolBuyFeePct:  p.ProtocolBuyFeePct.toBig(),
			ProtocolSellFeePct: p.ProtocolSellFeePct.toBig(),
			SubjectBuyFeePct:   p.SubjectBuyFeePct.toBig(),
			SubjectSellFeePct:  p.SubjectSellFeePct.toBig(),
		}, nil

	case KindUpdateProtocolFeeBeneficiary:
		var p struct {
			Beneficiary address `json:"beneficiary"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &UpdateProtocolFeeBeneficiary{Meta: meta, Beneficiary: string(p.Beneficiary)}, nil

	case KindMasterCopyUpdated:
		var p struct {
			MasterCopy address `json:"master_copy"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &MasterCopyUpdated{Meta: meta, MasterCopy: string(p.MasterCopy)}, nil

	case KindTokenLockCreated:
		var p struct {
			ContractAddress  address `json:"contract_address"`
			InitHash         string  `json:"init_hash"`
			Beneficiary      address `json:"beneficiary"`
			Token            address `json:"token"`
			ManagedAmount    uint256 `json:"managed_amount"`
			StartTime        uint256 `json:"start_time"`
			EndTime          uint256 `json:"end_time"`
			Periods          uint256 `json:"periods"`
			ReleaseStartTime uint256 `json:"release_start_time"`
			VestingCliffTime uint256 `json:"vesting_cliff_time"`
			Revocable        uint8   `json:"revocable"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &TokenLockCreated{
			Meta:             meta,
			ContractAddress:  string(p.ContractAddress),
			InitHash:         strings.ToLower(p.InitHash),
			Beneficiary:      string(p.Beneficiary),
			Token:            string(p.Token),
			ManagedAmount:    p.ManagedAmount.toBig(),
			StartTime:        p.StartTime.toBig(),
			EndTime:          p.EndTime.toBig(),
			Periods:          p.Periods.toBig(),
			ReleaseStartTime: p.ReleaseStartTime.toBig(),
			VestingCliffTime: p.VestingCliffTime.toBig(),
			Revocable:        p.Revocable,
		}, nil

	case KindTokensDeposited, KindTokensWithdrawn:
		var p struct {
			Sender address `json:"sender"`
			Amount uint256 `json:"amount"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		if e.Kind == KindTokensWithdrawn {
			return &TokensWithdrawn{Meta: meta, Sender: string(p.Sender), Amount: p.Amount.toBig()}, nil
		}
		return &TokensDeposited{Meta: meta, Sender: string(p.Sender), Amount: p.Amount.toBig()}, nil

	case KindFunctionCallAuth:
		var p struct {
			Caller    address `json:"caller"`
			SigHash   string  `json:"sig_hash"`
			Target    address `json:"target"`
			Signature string  `json:"signature"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &FunctionCallAuth{
			Meta:      meta,
			Caller:    string(p.Caller),
			SigHash:   strings.ToLower(p.SigHash),
			Target:    string(p.Target),
			Signature: p.Signature,
		}, nil

	case KindTokenDestinationAllowed, KindSubjectTokenDestinationAllowed:
		var p struct {
			Dst     address `json:"dst"`
			Allowed bool    `json:"allowed"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &DestinationAllowed{Meta: meta, Dst: string(p.Dst), Allowed: p.Allowed}, nil

	case KindMoxiePassTokenUpdated:
		var p struct {
			MoxiePassToken address `json:"moxie_pass_token"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &MoxiePassTokenUpdated{Meta: meta, MoxiePassToken: string(p.MoxiePassToken)}, nil

	case KindTokenManagerUpdated:
		var p struct {
			TokenManager address `json:"token_manager"`
		}
		if err := e.params(&p); err != nil {
			return nil, err
		}
		return &TokenManagerUpdated{Meta: meta, TokenManager: string(p.TokenManager)}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
}
