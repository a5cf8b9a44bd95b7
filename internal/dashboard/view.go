package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/traceability"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// AccountSource is the slice of accessmanager.Service the dashboard reads.
type AccountSource interface {
	CurrentAccount(ctx context.Context) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

// TokenSource is the slice of traceability.Service the dashboard reads.
type TokenSource interface {
	TokensByUser(ctx context.Context, user common.Address) ([]model.Token, error)
	AllTokens(ctx context.Context) ([]model.Token, error)
	Transfers(ctx context.Context, status model.TransferStatus) ([]model.Transfer, error)
	CollectedTokens(ctx context.Context) ([]model.Token, error)
	ProcessedTokens(ctx context.Context) ([]model.Token, error)
	RewardedTokens(ctx context.Context) ([]traceability.RewardedToken, error)
	RewardedTokensByUser(ctx context.Context, citizen common.Address) ([]traceability.RewardedToken, error)
}

// View is everything one dashboard screen needs. At most one summary is set,
// matching Route.Role.
type View struct {
	Route   Route          `json:"route"`
	Account *model.Account `json:"account,omitempty"`

	Admin           *AdminSummary           `json:"admin,omitempty"`
	Citizen         *CitizenSummary         `json:"citizen,omitempty"`
	Transporter     *TransporterSummary     `json:"transporter,omitempty"`
	Processor       *ProcessorSummary       `json:"processor,omitempty"`
	RewardAuthority *RewardAuthoritySummary `json:"reward_authority,omitempty"`
}

type Builder struct {
	accounts AccountSource
	tokens   TokenSource
	logger   *slog.Logger
}

func NewBuilder(accounts AccountSource, tokens TokenSource, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger.With("component", "dashboard"),
	}
}

// Build resolves the current account and, when it is granted a dashboard,
// loads that role's summary.
func (b *Builder) Build(ctx context.Context) (*View, error) {
	acct, err := b.accounts.CurrentAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("current account: %w", err)
	}
	view := &View{Route: Resolve(acct), Account: acct}
	if !view.Route.Granted() {
		return view, nil
	}

	switch view.Route.Role {
	case model.RoleAdmin:
		view.Admin, err = b.admin(ctx)
	case model.RoleCitizen:
		view.Citizen, err = b.citizen(ctx, acct.Address)
	case model.RoleTransporter:
		view.Transporter, err = b.transporter(ctx, acct.Address)
	case model.RoleProcessor:
		view.Processor, err = b.processor(ctx, acct.Address)
	case model.RoleRewardAuthority:
		view.RewardAuthority, err = b.rewardAuthority(ctx, acct.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("%s summary: %w", view.Route.Role, err)
	}
	b.logger.Debug("dashboard built", "role", view.Route.Role, "address", acct.Address.Hex())
	return view, nil
}

type AdminSummary struct {
	Total    int             `json:"total"`
	Pending  int             `json:"pending"`
	Approved int             `json:"approved"`
	Rejected int             `json:"rejected"`
	Accounts []model.Account `json:"accounts"`
}

func (b *Builder) admin(ctx context.Context) (*AdminSummary, error) {
	accounts, err := b.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	s := &AdminSummary{Total: len(accounts), Accounts: accounts}
	for _, a := range accounts {
		switch a.Status {
		case model.AccountStatusPending:
			s.Pending++
		case model.AccountStatusApproved:
			s.Approved++
		case model.AccountStatusRejected:
			s.Rejected++
		}
	}
	return s, nil
}

// CitizenSummary splits the citizen's tokens: InProgress counts tokens that
// left the Created stage but are not yet rewarded.
type CitizenSummary struct {
	Total      int                          `json:"total"`
	InProgress int                          `json:"in_progress"`
	Rewarded   int                          `json:"rewarded"`
	Tokens     []model.Token                `json:"tokens"`
	Rewards    []traceability.RewardedToken `json:"rewards"`
}

func (b *Builder) citizen(ctx context.Context, me common.Address) (*CitizenSummary, error) {
	s := &CitizenSummary{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Tokens, err = b.tokens.TokensByUser(gctx, me)
		return err
	})
	g.Go(func() (err error) {
		s.Rewards, err = b.tokens.RewardedTokensByUser(gctx, me)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.Total = len(s.Tokens)
	for _, t := range s.Tokens {
		switch t.Stage {
		case model.TokenStageCreated:
		case model.TokenStageRewarded:
			s.Rewarded++
		default:
			s.InProgress++
		}
	}
	return s, nil
}

// TransporterSummary: Available are Created tokens anyone may collect; Owned
// are tokens held by the transporter that are not already in an outgoing
// pending transfer.
type TransporterSummary struct {
	Available         []model.Token    `json:"available"`
	Owned             []model.Token    `json:"owned"`
	OutgoingTransfers []model.Transfer `json:"outgoing_transfers"`
	Collected         []model.Token    `json:"collected"`
}

func (b *Builder) transporter(ctx context.Context, me common.Address) (*TransporterSummary, error) {
	var (
		all       []model.Token
		pending   []model.Transfer
		collected []model.Token
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		all, err = b.tokens.AllTokens(gctx)
		return err
	})
	g.Go(func() (err error) {
		pending, err = b.tokens.Transfers(gctx, model.TransferStatusPending)
		return err
	})
	g.Go(func() (err error) {
		collected, err = b.tokens.CollectedTokens(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &TransporterSummary{
		Available:         []model.Token{},
		Owned:             []model.Token{},
		OutgoingTransfers: []model.Transfer{},
		Collected:         collected,
	}
	inFlight := make(map[uint64]struct{})
	for _, tr := range pending {
		if tr.From == me {
			s.OutgoingTransfers = append(s.OutgoingTransfers, tr)
			inFlight[tr.TokenID] = struct{}{}
		}
	}
	for _, t := range all {
		if t.Stage == model.TokenStageCreated {
			s.Available = append(s.Available, t)
		}
		if _, busy := inFlight[t.ID]; t.HeldBy(me) && !busy {
			s.Owned = append(s.Owned, t)
		}
	}
	return s, nil
}

type ProcessorSummary struct {
	IncomingTransfers  []model.Transfer `json:"incoming_transfers"`
	AwaitingProcessing []model.Token    `json:"awaiting_processing"`
	Processed          []model.Token    `json:"processed"`
}

func (b *Builder) processor(ctx context.Context, me common.Address) (*ProcessorSummary, error) {
	incoming, held, err := b.inbox(ctx, me, model.TokenStageCollected)
	if err != nil {
		return nil, err
	}
	processed, err := b.tokens.ProcessedTokens(ctx)
	if err != nil {
		return nil, err
	}
	return &ProcessorSummary{IncomingTransfers: incoming, AwaitingProcessing: held, Processed: processed}, nil
}

type RewardAuthoritySummary struct {
	IncomingTransfers []model.Transfer             `json:"incoming_transfers"`
	AwaitingReward    []model.Token                `json:"awaiting_reward"`
	Rewarded          []traceability.RewardedToken `json:"rewarded"`
}

func (b *Builder) rewardAuthority(ctx context.Context, me common.Address) (*RewardAuthoritySummary, error) {
	incoming, held, err := b.inbox(ctx, me, model.TokenStageProcessed)
	if err != nil {
		return nil, err
	}
	rewarded, err := b.tokens.RewardedTokens(ctx)
	if err != nil {
		return nil, err
	}
	return &RewardAuthoritySummary{IncomingTransfers: incoming, AwaitingReward: held, Rewarded: rewarded}, nil
}

// inbox returns pending transfers addressed to me and the tokens me holds in
// stage.
func (b *Builder) inbox(ctx context.Context, me common.Address, stage model.TokenStage) ([]model.Transfer, []model.Token, error) {
	var (
		pending []model.Transfer
		all     []model.Token
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pending, err = b.tokens.Transfers(gctx, model.TransferStatusPending)
		return err
	})
	g.Go(func() (err error) {
		all, err = b.tokens.AllTokens(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	incoming := []model.Transfer{}
	for _, tr := range pending {
		if tr.To == me {
			incoming = append(incoming, tr)
		}
	}
	held := []model.Token{}
	for _, t := range all {
		if t.HeldBy(me) && t.Stage == stage {
			held = append(held, t)
		}
	}
	return incoming, held, nil
}
