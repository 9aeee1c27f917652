// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/kvutil"
	"github.com/bvkgo/kv"
)

const (
	UsersKeyspace    = "/users/"
	SessionsKeyspace = "/sessions/"
	WalletsKeyspace  = "/subwallets/"
	TradesKeyspace   = "/trades/"
)

type Outcome string

const (
	TradePending Outcome = "Pending"
	TradeSuccess Outcome = "Success"
	TradeFailed  Outcome = "Failed"
)

func SessionKey(sid string) string {
	return path.Join(SessionsKeyspace, sid)
}

func UserKey(uid string) string {
	return path.Join(UsersKeyspace, uid)
}

func WalletKey(sid string, index int) string {
	return path.Join(WalletsKeyspace, sid, fmt.Sprintf("%03d", index))
}

func TradeKey(sid string, index int, seq int64) string {
	return path.Join(TradesKeyspace, sid, fmt.Sprintf("%03d", index), fmt.Sprintf("%012d", seq))
}

// Store persists users, sessions, sub-wallets and trades. Writes are
// serialized inside the process so that read-modify-write updates of a
// session are linearized.
type Store struct {
	db kv.Database

	mu sync.Mutex
}

func NewStore(db kv.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Database() kv.Database {
	return s.db
}

func (s *Store) update(ctx context.Context, fn func(ctx context.Context, rw kv.ReadWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return kv.WithReadWriter(ctx, s.db, fn)
}

// Create saves a new session and adds it to the owning user, creating the
// user record on first use.
func (s *Store) Create(ctx context.Context, state *gobs.SessionState) error {
	if state.State != string(AwaitingDeposit) {
		return fmt.Errorf("new session must be in %s state: %w", AwaitingDeposit, os.ErrInvalid)
	}
	return s.update(ctx, func(ctx context.Context, rw kv.ReadWriter) error {
		key := SessionKey(state.SessionID)
		if _, err := rw.Get(ctx, key); err == nil {
			return fmt.Errorf("session %q: %w", state.SessionID, os.ErrExist)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		ukey := UserKey(state.UserID)
		user, err := kvutil.Get[gobs.UserState](ctx, rw, ukey)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("could not load user %q: %w", state.UserID, err)
			}
			user = &gobs.UserState{
				UserID:     state.UserID,
				CreateTime: state.CreateTime,
			}
		}
		user.SessionIDs = append(user.SessionIDs, state.SessionID)
		if err := kvutil.Set(ctx, rw, ukey, user); err != nil {
			return fmt.Errorf("could not save user %q: %w", state.UserID, err)
		}
		if err := kvutil.Set(ctx, rw, key, state); err != nil {
			return fmt.Errorf("could not save session %q: %w", state.SessionID, err)
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context, sid string) (*gobs.SessionState, error) {
	return kvutil.GetDB[gobs.SessionState](ctx, s.db, SessionKey(sid))
}

func (s *Store) LoadUser(ctx context.Context, uid string) (*gobs.UserState, error) {
	return kvutil.GetDB[gobs.UserState](ctx, s.db, UserKey(uid))
}

// Transition moves a session into the next state. The optional mutate
// callback can record facts needed by the next state in the same
// transaction. Returns the updated session.
func (s *Store) Transition(ctx context.Context, sid string, to State, mutate func(*gobs.SessionState) error) (*gobs.SessionState, error) {
	var result *gobs.SessionState
	err := s.update(ctx, func(ctx context.Context, rw kv.ReadWriter) error {
		key := SessionKey(sid)
		state, err := kvutil.Get[gobs.SessionState](ctx, rw, key)
		if err != nil {
			return err
		}
		if err := CanTransition(State(state.State), to); err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(state); err != nil {
				return err
			}
		}
		state.State = string(to)
		state.LastActivity = time.Now()
		if err := kvutil.Set(ctx, rw, key, state); err != nil {
			return err
		}
		result = state
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not move session %q to %s: %w", sid, to, err)
	}
	return result, nil
}

// Fail moves a non-terminal session into the Failed state with the given
// diagnostic.
func (s *Store) Fail(ctx context.Context, sid string, diagnostic string) (*gobs.SessionState, error) {
	return s.Transition(ctx, sid, Failed, func(state *gobs.SessionState) error {
		state.Diagnostic = diagnostic
		return nil
	})
}

// Update modifies non-state attributes of a session. Terminal sessions are
// rejected with ErrTerminal.
func (s *Store) Update(ctx context.Context, sid string, fn func(*gobs.SessionState) error) (*gobs.SessionState, error) {
	var result *gobs.SessionState
	err := s.update(ctx, func(ctx context.Context, rw kv.ReadWriter) error {
		key := SessionKey(sid)
		state, err := kvutil.Get[gobs.SessionState](ctx, rw, key)
		if err != nil {
			return err
		}
		old := state.State
		if State(old).IsTerminal() {
			return fmt.Errorf("session %q is %s: %w", sid, old, ErrTerminal)
		}
		if err := fn(state); err != nil {
			return err
		}
		if state.State != old {
			return fmt.Errorf("session state cannot be changed through update: %w", os.ErrInvalid)
		}
		if err := kvutil.Set(ctx, rw, key, state); err != nil {
			return err
		}
		result = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Scan invokes the callback for every session in the store.
func (s *Store) Scan(ctx context.Context, fn func(context.Context, *gobs.SessionState) error) error {
	begin, end := kvutil.PathRange(SessionsKeyspace)
	return kvutil.AscendDB(ctx, s.db, begin, end, func(ctx context.Context, _ kv.Reader, _ string, v *gobs.SessionState) error {
		return fn(ctx, v)
	})
}

// CountUsers returns the number of known users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	count := 0
	begin, end := kvutil.PathRange(UsersKeyspace)
	err := kvutil.AscendDB(ctx, s.db, begin, end, func(context.Context, kv.Reader, string, *gobs.UserState) error {
		count++
		return nil
	})
	return count, err
}

func (s *Store) SaveWallet(ctx context.Context, w *gobs.SubWalletState) error {
	return s.update(ctx, func(ctx context.Context, rw kv.ReadWriter) error {
		return kvutil.Set(ctx, rw, WalletKey(w.SessionID, w.Index), w)
	})
}

func (s *Store) LoadWallet(ctx context.Context, sid string, index int) (*gobs.SubWalletState, error) {
	return kvutil.GetDB[gobs.SubWalletState](ctx, s.db, WalletKey(sid, index))
}

// UpdateWallet runs a read-modify-write on a single sub-wallet row.
func (s *Store) UpdateWallet(ctx context.Context, sid string, index int, fn func(*gobs.SubWalletState) error) (*gobs.SubWalletState, error) {
	var result *gobs.SubWalletState
	err := s.update(ctx, func(ctx context.Context, rw kv.ReadWriter) error {
		key := WalletKey(sid, index)
		w, err := kvutil.Get[gobs.SubWalletState](ctx, rw, key)
		if err != nil {
			return err
		}
		if err := fn(w); err != nil {
			return err
		}
		result = w
		return kvutil.Set(ctx, rw, key, w)
	})
	return result, err
}

// LoadWallets returns all sub-wallets of a session ordered by index.
func (s *Store) LoadWallets(ctx context.Context, sid string) ([]*gobs.SubWalletState, error) {
	var wallets []*gobs.SubWalletState
	begin, end := kvutil.PathRange(path.Join(WalletsKeyspace, sid))
	err := kvutil.AscendDB(ctx, s.db, begin, end, func(_ context.Context, _ kv.Reader, _ string, w *gobs.SubWalletState) error {
		wallets = append(wallets, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not load wallets for session %q: %w", sid, err)
	}
	return wallets, nil
}

// BeginTrade records a pending trade and advances the wallet's alternation
// state in one transaction. The trade direction becomes the wallet's last
// direction even if the trade later fails.
func (s *Store) BeginTrade(ctx context.Context, t *gobs.TradeState) error {
	return s.update(ctx, func(ctx context.Context, rw kv.ReadWriter) error {
		wkey := WalletKey(t.SessionID, t.WalletIndex)
		w, err := kvutil.Get[gobs.SubWalletState](ctx, rw, wkey)
		if err != nil {
			return err
		}
		if w.NextSequence != t.Sequence {
			return fmt.Errorf("trade sequence %d does not match wallet sequence %d: %w", t.Sequence, w.NextSequence, os.ErrInvalid)
		}
		w.LastDirection = t.Direction
		w.NextSequence++
		if err := kvutil.Set(ctx, rw, wkey, w); err != nil {
			return err
		}
		return kvutil.Set(ctx, rw, TradeKey(t.SessionID, t.WalletIndex, t.Sequence), t)
	})
}

// SaveTrade updates a trade row. Trades with a terminal outcome are never
// modified again.
func (s *Store) SaveTrade(ctx context.Context, t *gobs.TradeState) error {
	return s.update(ctx, func(ctx context.Context, rw kv.ReadWriter) error {
		key := TradeKey(t.SessionID, t.WalletIndex, t.Sequence)
		old, err := kvutil.Get[gobs.TradeState](ctx, rw, key)
		if err != nil {
			return err
		}
		if Outcome(old.Outcome) != TradePending {
			return fmt.Errorf("trade %s already has outcome %s: %w", old.UID, old.Outcome, os.ErrInvalid)
		}
		return kvutil.Set(ctx, rw, key, t)
	})
}

// LoadTrades returns all trades of a wallet ordered by sequence number.
func (s *Store) LoadTrades(ctx context.Context, sid string, index int) ([]*gobs.TradeState, error) {
	var trades []*gobs.TradeState
	dir := path.Join(TradesKeyspace, sid, fmt.Sprintf("%03d", index))
	begin, end := kvutil.PathRange(dir)
	err := kvutil.AscendDB(ctx, s.db, begin, end, func(_ context.Context, _ kv.Reader, _ string, t *gobs.TradeState) error {
		trades = append(trades, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not load trades for wallet %d of session %q: %w", index, sid, err)
	}
	return trades, nil
}

// PendingTrades returns trades of a wallet without a terminal outcome.
func (s *Store) PendingTrades(ctx context.Context, sid string, index int) ([]*gobs.TradeState, error) {
	trades, err := s.LoadTrades(ctx, sid, index)
	if err != nil {
		return nil, err
	}
	var pending []*gobs.TradeState
	for _, t := range trades {
		if Outcome(t.Outcome) == TradePending {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

