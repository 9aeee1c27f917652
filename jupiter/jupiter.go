// Copyright (c) 2025 BVK Chaitanya

// Package jupiter implements the ledger gateway for Solana. Balances,
// transfers and transaction status go through the Solana json-rpc api and
// swaps are routed through the Jupiter aggregator.
package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync/atomic"

	"github.com/bvk/volumebot/ctxutil"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/syncmap"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	bin "github.com/gagliardetto/binary"
)

const lamportsDecimals = 9

var (
	// baseFee is the signature fee of a single signer transaction.
	baseFee = decimal.New(5000, -lamportsDecimals)

	// tokenAccountRent is the rent exempt balance of an associated token
	// account, paid by the sender when the recipient has none.
	tokenAccountRent = decimal.New(2039280, -lamportsDecimals)
)

type Gateway struct {
	opts Options

	client  *http.Client
	limiter *rate.Limiter

	rpc *rpc.Client

	nextID atomic.Int64

	cg ctxutil.CloseGroup

	// decimalsMap caches the number of decimals per token mint.
	decimalsMap syncmap.Map[string, int32]

	// statusMap holds final statuses received through signature
	// subscriptions that are not yet picked by GetTxStatus.
	statusMap syncmap.Map[ledger.TxRef, ledger.TxStatus]
}

var _ ledger.Gateway = &Gateway{}

// New creates a gateway. Options are optional.
func New(opts *Options) (*Gateway, error) {
	if opts == nil {
		opts = new(Options)
	}
	g := &Gateway{
		opts: *opts,
	}
	g.opts.setDefaults()
	if err := g.opts.Check(); err != nil {
		return nil, err
	}
	g.client = &http.Client{Timeout: g.opts.HTTPTimeout}
	g.limiter = rate.NewLimiter(rate.Limit(g.opts.RequestsPerSecond), 1)
	g.rpc = rpc.NewWithCustomRPCClient(newLimitedClient(g.opts.RPCURL, g.client, g.limiter))
	return g, nil
}

// Close stops the background signature subscriptions.
func (g *Gateway) Close() error {
	g.cg.Close()
	return g.rpc.Close()
}

// Costs returns the base fee and the token account rent. Priority fees
// added by the aggregator to swap transactions are not included.
func (g *Gateway) Costs() ledger.Costs {
	return ledger.Costs{TxFee: baseFee, AccountRent: tokenAccountRent}
}

func toUnits(amount decimal.Decimal, decimals int32) (uint64, error) {
	v := amount.Shift(decimals).Truncate(0).BigInt()
	if v.Sign() <= 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: invalid amount %s", ledger.ErrPermanent, amount)
	}
	return v.Uint64(), nil
}

func fromUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -decimals)
}

func parsePublicKey(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: invalid address %q: %w", ledger.ErrPermanent, s, err)
	}
	return pk, nil
}

func (g *Gateway) commitment() rpc.CommitmentType {
	return rpc.CommitmentType(g.opts.Commitment)
}

// GetBalances returns the SOL balance and the total balance of all token
// accounts of the asset mint owned by the address.
func (g *Gateway) GetBalances(ctx context.Context, address, asset string) (*ledger.Balances, error) {
	owner, err := parsePublicKey(address)
	if err != nil {
		return nil, err
	}

	balance, err := g.rpc.GetBalance(ctx, owner, g.commitment())
	if err != nil {
		return nil, err
	}
	b := &ledger.Balances{
		Base: fromUnits(new(big.Int).SetUint64(balance.Value), lamportsDecimals),
	}
	if len(asset) == 0 {
		return b, nil
	}
	mint, err := parsePublicKey(asset)
	if err != nil {
		return nil, err
	}

	conf := &rpc.GetTokenAccountsConfig{Mint: mint.ToPointer()}
	opts := &rpc.GetTokenAccountsOpts{Commitment: g.commitment(), Encoding: solana.EncodingJSONParsed}
	accounts, err := g.rpc.GetTokenAccountsByOwner(ctx, owner, conf, opts)
	if err != nil {
		return nil, err
	}
	for _, v := range accounts.Value {
		if v == nil || v.Account.Data == nil {
			continue
		}
		var parsed struct {
			Parsed struct {
				Info struct {
					TokenAmount rpc.UiTokenAmount `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		}
		if err := json.Unmarshal(v.Account.Data.GetRawJSON(), &parsed); err != nil {
			return nil, fmt.Errorf("could not decode token account: %w", err)
		}
		amount := parsed.Parsed.Info.TokenAmount
		units, ok := new(big.Int).SetString(amount.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("could not parse token amount %q", amount.Amount)
		}
		g.decimalsMap.Store(asset, int32(amount.Decimals))
		b.Asset = b.Asset.Add(fromUnits(units, int32(amount.Decimals)))
	}
	return b, nil
}

func (g *Gateway) decimals(ctx context.Context, mint string) (int32, error) {
	if mint == NativeMint {
		return lamportsDecimals, nil
	}
	if v, ok := g.decimalsMap.Load(mint); ok {
		return v, nil
	}
	pk, err := parsePublicKey(mint)
	if err != nil {
		return 0, err
	}
	supply, err := g.rpc.GetTokenSupply(ctx, pk, g.commitment())
	if err != nil {
		return 0, err
	}
	if supply.Value == nil {
		return 0, fmt.Errorf("%w: token supply of %s is not available", ledger.ErrTransient, mint)
	}
	decimals := int32(supply.Value.Decimals)
	g.decimalsMap.Store(mint, decimals)
	return decimals, nil
}

func (g *Gateway) latestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := g.rpc.GetLatestBlockhash(ctx, g.commitment())
	if err != nil {
		return solana.Hash{}, err
	}
	if result.Value == nil {
		return solana.Hash{}, fmt.Errorf("%w: latest blockhash is not available", ledger.ErrTransient)
	}
	return result.Value.Blockhash, nil
}

func (g *Gateway) accountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	opts := &rpc.GetAccountInfoOpts{Encoding: solana.EncodingBase64, Commitment: g.commitment()}
	if _, err := g.rpc.GetAccountInfoWithOpts(ctx, address, opts); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// signAndSend signs the transaction message with the signer and submits it
// to the network. Transaction reference is the signer's signature.
func (g *Gateway) signAndSend(ctx context.Context, signer ledger.Signer, tx *solana.Transaction) (ledger.TxRef, error) {
	pub, err := parsePublicKey(signer.Address())
	if err != nil {
		return "", err
	}

	nsigs := int(tx.Message.Header.NumRequiredSignatures)
	index := -1
	for i := 0; i < nsigs && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			index = i
			break
		}
	}
	if index < 0 {
		return "", fmt.Errorf("%w: transaction does not need a signature from %s", ledger.ErrPermanent, pub)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("%w: could not marshal transaction message: %w", ledger.ErrPermanent, err)
	}
	sig, err := signer.Sign(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("could not sign transaction: %w", err)
	}
	for len(tx.Signatures) < nsigs {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[index] = solana.SignatureFromBytes(sig)

	data, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("%w: could not marshal transaction: %w", ledger.ErrPermanent, err)
	}

	opts := rpc.TransactionOpts{PreflightCommitment: g.commitment()}
	signature, err := g.rpc.SendRawTransactionWithOpts(ctx, data, opts)
	if err != nil {
		return "", err
	}
	ref := ledger.TxRef(tx.Signatures[index].String())
	if signature.String() != string(ref) {
		slog.Warn("rpc node returned an unexpected transaction signature", "wanted", ref, "got", signature)
	}
	g.watch(ref)
	return ref, nil
}

// GetTxStatus reports the status of a transaction, from the signature
// subscriptions when possible.
func (g *Gateway) GetTxStatus(ctx context.Context, ref ledger.TxRef) (ledger.TxStatus, error) {
	if v, ok := g.statusMap.LoadAndDelete(ref); ok {
		return v, nil
	}

	sig, err := solana.SignatureFromBase58(string(ref))
	if err != nil {
		return "", fmt.Errorf("%w: invalid transaction reference %q: %w", ledger.ErrPermanent, ref, err)
	}
	result, err := g.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return ledger.PENDING, nil
		}
		return "", err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return ledger.PENDING, nil
	}
	v := result.Value[0]
	if v.Err != nil {
		return ledger.FAILED, nil
	}
	if isConfirmed(string(g.commitment()), string(v.ConfirmationStatus)) {
		return ledger.CONFIRMED, nil
	}
	return ledger.PENDING, nil
}

// isConfirmed returns true if the status meets the commitment level.
func isConfirmed(commitment, status string) bool {
	levels := map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}
	return levels[status] != 0 && levels[status] >= levels[commitment]
}

func decodeTransaction(data []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("%w: could not decode transaction: %w", ledger.ErrPermanent, err)
	}
	return tx, nil
}
