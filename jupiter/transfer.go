// Copyright (c) 2025 BVK Chaitanya

package jupiter

import (
	"context"
	"fmt"

	"github.com/bvk/volumebot/ledger"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
)

// Transfer moves SOL when asset is empty, or the asset tokens otherwise,
// from the signer to the destination. Destination's associated token
// account is created when it doesn't exist.
func (g *Gateway) Transfer(ctx context.Context, signer ledger.Signer, destination, asset string, amount decimal.Decimal) (ledger.TxRef, error) {
	from, err := parsePublicKey(signer.Address())
	if err != nil {
		return "", err
	}
	to, err := parsePublicKey(destination)
	if err != nil {
		return "", err
	}

	var instructions []solana.Instruction
	if len(asset) == 0 {
		lamports, err := toUnits(amount, lamportsDecimals)
		if err != nil {
			return "", err
		}
		instructions = append(instructions, system.NewTransferInstruction(lamports, from, to).Build())
	} else {
		instrs, err := g.tokenTransfer(ctx, from, to, asset, amount)
		if err != nil {
			return "", err
		}
		instructions = append(instructions, instrs...)
	}

	hash, err := g.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	tx, err := solana.NewTransaction(instructions, hash, solana.TransactionPayer(from))
	if err != nil {
		return "", fmt.Errorf("%w: could not create transaction: %w", ledger.ErrPermanent, err)
	}
	return g.signAndSend(ctx, signer, tx)
}

func (g *Gateway) tokenTransfer(ctx context.Context, from, to solana.PublicKey, asset string, amount decimal.Decimal) ([]solana.Instruction, error) {
	mint, err := parsePublicKey(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := g.decimals(ctx, asset)
	if err != nil {
		return nil, err
	}
	units, err := toUnits(amount, decimals)
	if err != nil {
		return nil, err
	}

	source, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, fmt.Errorf("%w: could not find token account: %w", ledger.ErrPermanent, err)
	}
	target, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, fmt.Errorf("%w: could not find token account: %w", ledger.ErrPermanent, err)
	}

	var instructions []solana.Instruction
	exists, err := g.accountExists(ctx, target)
	if err != nil {
		return nil, err
	}
	if !exists {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(from, to, mint).Build())
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(units, uint8(decimals), source, mint, target, from, nil).Build())
	return instructions, nil
}
