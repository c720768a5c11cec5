package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Lagxy/Lending-DApps/native/lending"
)

// Key prefixes for the ledger records.
var (
	tokenListKey  = []byte("lend/tokens")
	tokenPrefix   = "lend/token/"
	collatPrefix  = "lend/coll/"
	loanPrefix    = "lend/loan/"
	raisingPrefix = "lend/raise/"
)

// State persists the lending ledgers in a key-value database using JSON
// records. Monetary amounts are stored as decimal strings so precision never
// depends on the JSON number type. It satisfies the lending engine's state
// contract: lookups return nil for absent records.
type State struct {
	db Database
}

// NewState wraps a database in the ledger state layer.
func NewState(db Database) *State {
	return &State{db: db}
}

func (s *State) get(key []byte, out any) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *State) put(key []byte, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.db.Put(key, raw)
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(value, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("storage: invalid amount %q", value)
	}
	return out, nil
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

type tokenRecord struct {
	Feed     string `json:"feed"`
	Decimals uint8  `json:"decimals"`
}

type loanRecord struct {
	User    string `json:"user"`
	Debt    string `json:"debt"`
	Repaid  string `json:"repaid"`
	DueDate int64  `json:"dueDate"`
}

type funderRecord struct {
	Funder string `json:"funder"`
	Amount string `json:"amount"`
	Reward string `json:"reward"`
}

type raisingRecord struct {
	Borrower        string         `json:"borrower"`
	Open            bool           `json:"open"`
	CollateralToken string         `json:"collateralToken"`
	InterestRateBPS uint16         `json:"interestRateBps"`
	Target          string         `json:"target"`
	Raised          string         `json:"raised"`
	Funders         []funderRecord `json:"funders"`
}

func tokenKey(token common.Address) []byte {
	return []byte(tokenPrefix + token.Hex())
}

func collateralKey(user, token common.Address) []byte {
	return []byte(collatPrefix + user.Hex() + "/" + token.Hex())
}

func loanKey(user common.Address) []byte {
	return []byte(loanPrefix + user.Hex())
}

func raisingKey(borrower common.Address) []byte {
	return []byte(raisingPrefix + borrower.Hex())
}

// GetTokenInfo returns the registry record for a token, or nil when the token
// is not supported.
func (s *State) GetTokenInfo(token common.Address) (*lending.TokenInfo, error) {
	var rec tokenRecord
	found, err := s.get(tokenKey(token), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &lending.TokenInfo{Feed: common.HexToAddress(rec.Feed), Decimals: rec.Decimals}, nil
}

func (s *State) PutTokenInfo(token common.Address, info *lending.TokenInfo) error {
	if info == nil {
		return s.db.Delete(tokenKey(token))
	}
	return s.put(tokenKey(token), tokenRecord{Feed: info.Feed.Hex(), Decimals: info.Decimals})
}

func (s *State) DeleteTokenInfo(token common.Address) error {
	return s.db.Delete(tokenKey(token))
}

// TokenList returns the supported token set in registry order.
func (s *State) TokenList() ([]common.Address, error) {
	var hexes []string
	found, err := s.get(tokenListKey, &hexes)
	if err != nil || !found {
		return nil, err
	}
	tokens := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		tokens = append(tokens, common.HexToAddress(h))
	}
	return tokens, nil
}

func (s *State) PutTokenList(tokens []common.Address) error {
	hexes := make([]string, 0, len(tokens))
	for _, token := range tokens {
		hexes = append(hexes, token.Hex())
	}
	return s.put(tokenListKey, hexes)
}

// GetCollateral returns the deposited balance, or nil when the user has never
// deposited this token.
func (s *State) GetCollateral(user, token common.Address) (*big.Int, error) {
	var value string
	found, err := s.get(collateralKey(user, token), &value)
	if err != nil || !found {
		return nil, err
	}
	return parseAmount(value)
}

func (s *State) PutCollateral(user, token common.Address, amount *big.Int) error {
	return s.put(collateralKey(user, token), formatAmount(amount))
}

// GetLoan returns the active loan, or nil when none exists.
func (s *State) GetLoan(user common.Address) (*lending.Loan, error) {
	var rec loanRecord
	found, err := s.get(loanKey(user), &rec)
	if err != nil || !found {
		return nil, err
	}
	debt, err := parseAmount(rec.Debt)
	if err != nil {
		return nil, err
	}
	repaid, err := parseAmount(rec.Repaid)
	if err != nil {
		return nil, err
	}
	return &lending.Loan{
		User:    common.HexToAddress(rec.User),
		Debt:    debt,
		Repaid:  repaid,
		DueDate: rec.DueDate,
	}, nil
}

func (s *State) PutLoan(user common.Address, loan *lending.Loan) error {
	if loan == nil {
		return s.db.Delete(loanKey(user))
	}
	return s.put(loanKey(user), loanRecord{
		User:    loan.User.Hex(),
		Debt:    formatAmount(loan.Debt),
		Repaid:  formatAmount(loan.Repaid),
		DueDate: loan.DueDate,
	})
}

func (s *State) DeleteLoan(user common.Address) error {
	return s.db.Delete(loanKey(user))
}

// GetRaising returns the borrower's raising record, or nil when none exists.
func (s *State) GetRaising(borrower common.Address) (*lending.CollateralRaising, error) {
	var rec raisingRecord
	found, err := s.get(raisingKey(borrower), &rec)
	if err != nil || !found {
		return nil, err
	}
	target, err := parseAmount(rec.Target)
	if err != nil {
		return nil, err
	}
	raised, err := parseAmount(rec.Raised)
	if err != nil {
		return nil, err
	}
	raising := &lending.CollateralRaising{
		Borrower:        common.HexToAddress(rec.Borrower),
		Open:            rec.Open,
		CollateralToken: common.HexToAddress(rec.CollateralToken),
		InterestRateBPS: rec.InterestRateBPS,
		Target:          target,
		Raised:          raised,
		Positions:       make(map[common.Address]*lending.FunderPosition, len(rec.Funders)),
	}
	for _, f := range rec.Funders {
		amount, err := parseAmount(f.Amount)
		if err != nil {
			return nil, err
		}
		reward, err := parseAmount(f.Reward)
		if err != nil {
			return nil, err
		}
		addr := common.HexToAddress(f.Funder)
		raising.Funders = append(raising.Funders, addr)
		raising.Positions[addr] = &lending.FunderPosition{Amount: amount, Reward: reward}
	}
	return raising, nil
}

func (s *State) PutRaising(borrower common.Address, raising *lending.CollateralRaising) error {
	if raising == nil {
		return s.db.Delete(raisingKey(borrower))
	}
	rec := raisingRecord{
		Borrower:        raising.Borrower.Hex(),
		Open:            raising.Open,
		CollateralToken: raising.CollateralToken.Hex(),
		InterestRateBPS: raising.InterestRateBPS,
		Target:          formatAmount(raising.Target),
		Raised:          formatAmount(raising.Raised),
	}
	for _, funder := range raising.Funders {
		pos := raising.Positions[funder]
		if pos == nil {
			pos = &lending.FunderPosition{}
		}
		rec.Funders = append(rec.Funders, funderRecord{
			Funder: funder.Hex(),
			Amount: formatAmount(pos.Amount),
			Reward: formatAmount(pos.Reward),
		})
	}
	return s.put(raisingKey(borrower), rec)
}

func (s *State) DeleteRaising(borrower common.Address) error {
	return s.db.Delete(raisingKey(borrower))
}
