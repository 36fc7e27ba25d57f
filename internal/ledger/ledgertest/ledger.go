package ledgertest

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/LeJamon/goEscrowConform/internal/escrow"
	"github.com/LeJamon/goEscrowConform/internal/ledger"
)

// Default fake-ledger economics.
const (
	DefaultFee                  uint64 = 5000
	DefaultEscrowedPaymentLimit uint8  = 5
	rentBytesPerAccountOverhead uint64 = 128
	rentLamportsPerByte         uint64 = 6960
)

var (
	ErrBlockhashNotFound = errors.New("blockhash not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrProgram           = errors.New("program error")
)

// Ledger is an in-memory ledger that runs the subscription escrow program's
// wire contract. It is safe for concurrent use.
type Ledger struct {
	ProgramID solana.PublicKey
	Fee       uint64

	// EscrowedPaymentLimit is how many payments are held in escrow; later
	// payments are credited straight to the seller.
	EscrowedPaymentLimit uint8
	// CountDirectPayments makes direct payments bump payment_count.
	CountDirectPayments bool
	// DropCountAt makes the escrowed payment that would bring payment_count to
	// this value leave the count unchanged. It fires once.
	DropCountAt uint8
	// KeepClosedAccounts leaves the escrow account data behind after a
	// withdrawal drains it.
	KeepClosedAccounts bool
	// BurnReleasedRent drops the rent reserve on a release withdrawal instead
	// of returning it to the buyer.
	BurnReleasedRent bool

	// FailNext is the number of upcoming transactions that pass preflight,
	// land, charge the fee and then fail in execution.
	FailNext int

	// AirdropFailures is the number of upcoming airdrop requests that fail at
	// the transport level.
	AirdropFailures int
	// DroppedAirdrops is the number of upcoming accepted airdrops that never confirm.
	DroppedAirdrops int
	// ConfirmAfter is the number of status polls a signature stays "processed".
	ConfirmAfter int
	// BalanceLag is the number of extra polls after confirmation before an
	// airdrop's credit becomes visible.
	BalanceLag int

	mu        sync.Mutex
	balances  map[solana.PublicKey]uint64
	accounts  map[solana.PublicKey][]byte
	sigs      map[solana.Signature]*sigState
	blockhash solana.Hash
	calls     []escrow.Method
}

type sigState struct {
	polls   int
	dropped bool
	err     interface{}

	creditTo     solana.PublicKey
	creditAmount uint64
	credited     bool
}

var _ ledger.Client = (*Ledger)(nil)

// New creates a fake ledger for programID.
func New(programID solana.PublicKey) *Ledger {
	return &Ledger{
		ProgramID:            programID,
		Fee:                  DefaultFee,
		EscrowedPaymentLimit: DefaultEscrowedPaymentLimit,
		balances:             make(map[solana.PublicKey]uint64),
		accounts:             make(map[solana.PublicKey][]byte),
		sigs:                 make(map[solana.Signature]*sigState),
		blockhash:            newHash(),
	}
}

// Rent mirrors the cluster's rent-exemption formula.
func Rent(dataSize uint64) uint64 {
	return (dataSize + rentBytesPerAccountOverhead) * rentLamportsPerByte
}

// SetBalance overrides an account balance.
func (l *Ledger) SetBalance(pk solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[pk] = lamports
}

// BalanceOf returns an account balance.
func (l *Ledger) BalanceOf(pk solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[pk]
}

// ExpireBlockhash rotates the recent blockhash so earlier ones are rejected.
func (l *Ledger) ExpireBlockhash() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockhash = newHash()
}

// Calls returns the program methods executed so far.
func (l *Ledger) Calls() []escrow.Method {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]escrow.Method(nil), l.calls...)
}

func (l *Ledger) GetBalance(_ context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &rpc.GetBalanceResult{Value: l.balances[account]}, nil
}

func (l *Ledger) RequestAirdrop(_ context.Context, account solana.PublicKey, lamports uint64, _ rpc.CommitmentType) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.AirdropFailures > 0 {
		l.AirdropFailures--
		return solana.Signature{}, errors.New("airdrop request failed: rate limited")
	}

	sig := newSignature()
	st := &sigState{creditTo: account, creditAmount: lamports}
	if l.DroppedAirdrops > 0 {
		l.DroppedAirdrops--
		st.dropped = true
	}
	l.sigs[sig] = st
	return sig, nil
}

func (l *Ledger) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(sigs))}
	for i, sig := range sigs {
		st, ok := l.sigs[sig]
		if !ok || st.dropped {
			continue
		}
		st.polls++
		if st.polls <= l.ConfirmAfter {
			out.Value[i] = &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusProcessed}
			continue
		}
		if st.creditAmount > 0 && !st.credited && st.polls > l.ConfirmAfter+l.BalanceLag {
			l.balances[st.creditTo] += st.creditAmount
			st.credited = true
		}
		out.Value[i] = &rpc.SignatureStatusesResult{
			ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
			Err:                st.err,
		}
	}
	return out, nil
}

func (l *Ledger) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: l.blockhash},
	}, nil
}

func (l *Ledger) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, ok := l.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{
			Lamports: l.balances[account],
			Owner:    l.ProgramID,
			Data:     rpc.DataBytesOrJSONFromBytes(append([]byte(nil), data...)),
		},
	}, nil
}

func (l *Ledger) GetMinimumBalanceForRentExemption(_ context.Context, dataSize uint64, _ rpc.CommitmentType) (uint64, error) {
	return Rent(dataSize), nil
}

// SendTransactionWithOpts runs preflight checks and executes the transaction.
// A failing transaction is rejected as a preflight error and leaves no trace,
// unless FailNext forces it to land with an execution error.
func (l *Ledger) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := tx.Message
	if msg.RecentBlockhash != l.blockhash {
		return solana.Signature{}, ErrBlockhashNotFound
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if len(msg.AccountKeys) == 0 || len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("transaction has no fee payer")
	}

	if l.FailNext > 0 {
		l.FailNext--
		payer := msg.AccountKeys[0]
		if err := l.debit(payer, l.Fee); err != nil {
			return solana.Signature{}, fmt.Errorf("transaction simulation failed: %w", err)
		}
		sig := tx.Signatures[0]
		l.sigs[sig] = &sigState{err: map[string]interface{}{
			"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6000}},
		}}
		return sig, nil
	}

	balances := maps.Clone(l.balances)
	accounts := maps.Clone(l.accounts)
	calls := len(l.calls)

	if err := l.execute(msg); err != nil {
		l.balances, l.accounts, l.calls = balances, accounts, l.calls[:calls]
		return solana.Signature{}, fmt.Errorf("transaction simulation failed: %w", err)
	}

	sig := tx.Signatures[0]
	l.sigs[sig] = &sigState{}
	return sig, nil
}

func (l *Ledger) execute(msg solana.Message) error {
	payer := msg.AccountKeys[0]
	if l.balances[payer] < l.Fee {
		return fmt.Errorf("%w: fee payer %s", ErrInsufficientFunds, payer)
	}
	l.balances[payer] -= l.Fee

	for i, inst := range msg.Instructions {
		if int(inst.ProgramIDIndex) >= len(msg.AccountKeys) {
			return fmt.Errorf("instruction %d: bad program index", i)
		}
		if msg.AccountKeys[inst.ProgramIDIndex] != l.ProgramID {
			return fmt.Errorf("instruction %d: unknown program %s", i, msg.AccountKeys[inst.ProgramIDIndex])
		}
		keys := make([]solana.PublicKey, len(inst.Accounts))
		for j, idx := range inst.Accounts {
			if int(idx) >= len(msg.AccountKeys) {
				return fmt.Errorf("instruction %d: bad account index", i)
			}
			keys[j] = msg.AccountKeys[idx]
		}
		if len(keys) != 4 || keys[3] != solana.SystemProgramID {
			return fmt.Errorf("%w: instruction %d: expected [escrow, buyer, seller, system]", ErrProgram, i)
		}

		call, err := escrow.DecodeCall(inst.Data)
		if err != nil {
			return fmt.Errorf("%w: instruction %d: %v", ErrProgram, i, err)
		}
		if err := l.apply(msg, call, keys[0], keys[1], keys[2]); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrProgram, call.Method(), err)
		}
		l.calls = append(l.calls, call.Method())
	}
	return nil
}

func (l *Ledger) apply(msg solana.Message, call escrow.Call, escrowAddr, buyer, seller solana.PublicKey) error {
	switch c := call.(type) {
	case escrow.StartSubscription:
		if !msg.IsSigner(buyer) {
			return errors.New("buyer must sign")
		}
		want, err := escrow.DeriveAddress(l.ProgramID, buyer, seller, c.SubscriptionID)
		if err != nil {
			return err
		}
		if want.Address != escrowAddr {
			return errors.New("seeds constraint violated")
		}
		if _, exists := l.accounts[escrowAddr]; exists {
			return errors.New("account already in use")
		}
		rent := Rent(escrow.DefaultSize())
		if err := l.debit(buyer, rent); err != nil {
			return err
		}
		l.balances[escrowAddr] += rent
		return l.store(escrowAddr, &escrow.View{
			Seller:              seller,
			Buyer:               buyer,
			SubscriptionID:      c.SubscriptionID,
			IsActive:            true,
			ValidationThreshold: c.ValidationThreshold,
		})

	case escrow.MakePayment:
		if !msg.IsSigner(buyer) {
			return errors.New("buyer must sign")
		}
		v, err := l.load(escrowAddr, buyer, seller)
		if err != nil {
			return err
		}
		if !v.IsActive {
			return errors.New("subscription inactive")
		}
		if err := l.debit(buyer, c.Amount); err != nil {
			return err
		}
		if v.PaymentCount < l.EscrowedPaymentLimit {
			l.balances[escrowAddr] += c.Amount
			if l.DropCountAt != 0 && v.PaymentCount+1 == l.DropCountAt {
				l.DropCountAt = 0
			} else {
				v.PaymentCount++
			}
			v.TotalAmount += c.Amount
		} else {
			l.balances[seller] += c.Amount
			if l.CountDirectPayments {
				v.PaymentCount++
			}
		}
		return l.store(escrowAddr, v)

	case escrow.CancelSubscription:
		if !msg.IsSigner(buyer) {
			return errors.New("buyer must sign")
		}
		v, err := l.load(escrowAddr, buyer, seller)
		if err != nil {
			return err
		}
		if !v.IsActive {
			return errors.New("subscription already cancelled")
		}
		v.IsActive = false
		return l.store(escrowAddr, v)

	case escrow.WithdrawFunds:
		if !msg.IsSigner(seller) {
			return errors.New("seller must sign")
		}
		v, err := l.load(escrowAddr, buyer, seller)
		if err != nil {
			return err
		}
		held := l.balances[escrowAddr]
		if c.ValidationData > v.ValidationThreshold {
			l.balances[buyer] += held
		} else {
			l.balances[seller] += v.TotalAmount
			if !l.BurnReleasedRent {
				l.balances[buyer] += held - v.TotalAmount
			}
		}
		delete(l.balances, escrowAddr)
		if !l.KeepClosedAccounts {
			delete(l.accounts, escrowAddr)
		}
		return nil
	}
	return fmt.Errorf("unhandled call %T", call)
}

func (l *Ledger) debit(pk solana.PublicKey, amount uint64) error {
	if l.balances[pk] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, pk, l.balances[pk], amount)
	}
	l.balances[pk] -= amount
	return nil
}

func (l *Ledger) load(addr, buyer, seller solana.PublicKey) (*escrow.View, error) {
	data, ok := l.accounts[addr]
	if !ok {
		return nil, errors.New("account not initialized")
	}
	v, err := escrow.DecodeView(data)
	if err != nil {
		return nil, err
	}
	if v.Buyer != buyer || v.Seller != seller {
		return nil, errors.New("party constraint violated")
	}
	return v, nil
}

func (l *Ledger) store(addr solana.PublicKey, v *escrow.View) error {
	data, err := v.Encode()
	if err != nil {
		return err
	}
	l.accounts[addr] = data
	return nil
}

func newHash() solana.Hash {
	var h solana.Hash
	if _, err := rand.Read(h[:]); err != nil {
		panic(err)
	}
	return h
}

func newSignature() solana.Signature {
	var s solana.Signature
	if _, err := rand.Read(s[:]); err != nil {
		panic(err)
	}
	return s
}
