package vaultmanager

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gitlab.com/TitanInd/fundvault/internal/events"
	"gitlab.com/TitanInd/fundvault/internal/interfaces"
	"gitlab.com/TitanInd/fundvault/internal/lib"
	"gitlab.com/TitanInd/fundvault/internal/vault"
	"golang.org/x/exp/slices"
)

// GatewayFactory builds the payment rail for a freshly minted escrow account.
type GatewayFactory func(escrow common.Address) vault.PaymentGateway

// Defaults are applied to creation params that were left unset.
type Defaults struct {
	VotingTime       time.Duration
	RetryCooldown    time.Duration
	MaxRetryAttempts int
	EventHistorySize int
}

// VaultManager owns the collection of live vaults, assigns them IDs and
// escrow accounts, and fans their notifications out to the event manager
// while keeping a per-vault history ring.
type VaultManager struct {
	vaults *lib.Collection[*vault.Vault]

	mutex     sync.RWMutex
	histories map[string]*events.History
	escrows   map[string]common.Address

	gatewayFactory GatewayFactory
	eventManager   *events.EventManager
	defaults       Defaults
	log            interfaces.ILogger
}

func NewVaultManager(gatewayFactory GatewayFactory, eventManager *events.EventManager, defaults Defaults, log interfaces.ILogger) *VaultManager {
	return &VaultManager{
		vaults:         lib.NewCollection[*vault.Vault](),
		histories:      make(map[string]*events.History),
		escrows:        make(map[string]common.Address),
		gatewayFactory: gatewayFactory,
		eventManager:   eventManager,
		defaults:       defaults,
		log:            log,
	}
}

func (m *VaultManager) CreateVault(params vault.Params) (*vault.Vault, error) {
	if params.VotingTime == 0 {
		params.VotingTime = m.defaults.VotingTime
	}
	if params.RetryCooldown == 0 {
		params.RetryCooldown = m.defaults.RetryCooldown
	}
	if params.MaxRetryAttempts == 0 {
		params.MaxRetryAttempts = m.defaults.MaxRetryAttempts
	}

	id := uuid.New()
	vaultID := id.String()
	escrow := common.BytesToAddress(id[:])
	history := events.NewHistory(m.defaults.EventHistorySize)

	sink := func(e vault.Event) {
		history.Add(events.HistoryItem{
			Topic:     e.TopicHex(),
			Name:      e.Name(),
			Payload:   e,
			Timestamp: time.Now(),
		})
		m.eventManager.Publish(e.TopicHex(), e)
	}

	v, err := vault.NewVault(vaultID, params, m.gatewayFactory(escrow), sink, m.log.Named("VAULT "+vaultID[:8]))
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	m.histories[vaultID] = history
	m.escrows[vaultID] = escrow
	m.mutex.Unlock()
	m.vaults.Store(v)

	m.log.Infof("vault %s created, escrow account %s, %d milestones", vaultID, escrow.Hex(), len(params.Milestones))
	return v, nil
}

func (m *VaultManager) GetVault(id string) (*vault.Vault, bool) {
	return m.vaults.Load(id)
}

func (m *VaultManager) GetVaults() []*vault.Vault {
	all := []*vault.Vault{}
	m.vaults.Range(func(v *vault.Vault) bool {
		all = append(all, v)
		return true
	})

	slices.SortStableFunc(all, func(a, b *vault.Vault) bool {
		return a.GetID() < b.GetID()
	})
	return all
}

func (m *VaultManager) GetHistory(id string) (*events.History, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	history, ok := m.histories[id]
	return history, ok
}

func (m *VaultManager) GetEscrowAddress(id string) (common.Address, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	escrow, ok := m.escrows[id]
	return escrow, ok
}
