// Copyright (c) 2023 BVK Chaitanya

// Package server assembles the volumebot service: the ledger gateway, key
// custody, the session engine and the optional notification channels.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/ctxutil"
	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/engine"
	"github.com/bvk/volumebot/httputil"
	"github.com/bvk/volumebot/jupiter"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/paper"
	"github.com/bvk/volumebot/pushover"
	"github.com/bvk/volumebot/telegram"
	"github.com/bvkgo/kv"
)

// alerter sends high priority operator notifications.
type alerter interface {
	SendAlert(ctx context.Context, at time.Time, title, msg string) error
}

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	db kv.Database

	gw     ledger.Gateway
	paper  *paper.Ledger
	solana *jupiter.Gateway

	keys   *custody.Custodian
	engine *engine.Engine

	telegramClient *telegram.Client
	alerter        alerter

	// alertFreezeDeadlineMap is only accessed by the alert relay goroutine.
	alertFreezeDeadlineMap map[string]time.Time
}

// New creates the service. Sessions are not scheduled till Start is called.
func New(ctx context.Context, secrets *Secrets, db kv.Database, opts *Options) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if err := secrets.Check(); err != nil {
		return nil, err
	}
	if secrets.Custody == nil {
		return nil, fmt.Errorf("custody passphrase is required: %w", os.ErrInvalid)
	}

	s := &Server{
		opts:                   *opts,
		db:                     db,
		alertFreezeDeadlineMap: make(map[string]time.Time),
	}
	defer func() {
		if status != nil {
			s.Close()
		}
	}()

	keys, err := custody.New(db, secrets.Custody.Passphrase)
	if err != nil {
		return nil, err
	}
	s.keys = keys

	if opts.Paper {
		popts := opts.PaperOptions
		p, err := paper.New(&popts)
		if err != nil {
			return nil, fmt.Errorf("could not create paper ledger: %w", err)
		}
		s.gw, s.paper = p, p
		slog.Warn("using the simulated paper ledger; no funds are moved on the network")
	} else {
		jopts := opts.Jupiter
		if v := secrets.Solana; v != nil {
			jopts.RPCURL, jopts.WebsocketURL, jopts.SwapURL = v.RPCURL, v.WebsocketURL, v.SwapURL
		}
		g, err := jupiter.New(&jopts)
		if err != nil {
			return nil, fmt.Errorf("could not create solana gateway: %w", err)
		}
		s.gw, s.solana = g, g
	}

	eopts := opts.Engine
	e, err := engine.New(db, s.gw, keys, &eopts)
	if err != nil {
		return nil, err
	}
	s.engine = e

	if secrets.Telegram != nil {
		tc, err := telegram.New(ctx, db, secrets.Telegram)
		if err != nil {
			return nil, fmt.Errorf("could not create telegram client: %w", err)
		}
		s.telegramClient = tc
		if err := e.AddTelegramCommands(ctx, tc); err != nil {
			return nil, err
		}
	}

	if secrets.Pushover != nil {
		pc, err := pushover.New(secrets.Pushover)
		if err != nil {
			return nil, fmt.Errorf("could not create pushover client: %w", err)
		}
		s.alerter = pc
	}
	return s, nil
}

func (s *Server) Close() error {
	s.cg.Close()
	if s.engine != nil {
		s.engine.Close()
	}
	if s.telegramClient != nil {
		s.telegramClient.Close()
	}
	if s.solana != nil {
		s.solana.Close()
	}
	return nil
}

// Start resumes the sessions and starts relaying reports and alerts.
func (s *Server) Start(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return err
	}
	if s.telegramClient != nil {
		s.cg.Go(func(ctx context.Context) {
			if err := s.engine.RelayReports(ctx, s.telegramClient); err != nil && ctx.Err() == nil {
				slog.Error("telegram report relay has stopped", "err", err)
			}
		})
	}
	if s.alerter != nil {
		s.cg.Go(func(ctx context.Context) {
			if err := s.relayAlerts(ctx, s.alerter); err != nil && ctx.Err() == nil {
				slog.Error("alert relay has stopped", "err", err)
			}
		})
	}
	return nil
}

// Stop unschedules all sessions. Session state is left as is, so they are
// resumed on the next Start.
func (s *Server) Stop(ctx context.Context) error {
	return s.engine.Stop(ctx)
}

func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// HandlerMap returns the service api handlers.
func (s *Server) HandlerMap() map[string]http.Handler {
	m := s.engine.HandlerMap()
	if s.paper != nil {
		m[api.PaperDepositPath] = httputil.PostJSONHandler(s.doPaperDeposit, nil)
	}
	return m
}

func (s *Server) doPaperDeposit(ctx context.Context, req *api.PaperDepositRequest) (*api.PaperDepositResponse, error) {
	s.paper.Deposit(req.Address, req.Asset, req.Base, req.Amount)
	b := s.paper.Balances(req.Address, req.Asset)
	slog.Info("added funds to the paper ledger", "address", req.Address, "base", req.Base, "asset", req.Asset, "amount", req.Amount)
	return &api.PaperDepositResponse{Base: b.Base, Asset: b.Asset}, nil
}
