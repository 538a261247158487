package routes

import (
	"context"
	"fmt"

	"github.com/towlink/towlink/internal/auth"
	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/infra"
	"github.com/towlink/towlink/internal/ledger"
	"github.com/towlink/towlink/internal/notification"
	"github.com/towlink/towlink/internal/ride"
	"github.com/towlink/towlink/internal/wallet"
)

// Services is the wired application graph shared by the HTTP API and the push
// gateway.
type Services struct {
	Identity   *identity.Service
	Auth       *auth.Service
	Wallet     *wallet.Service
	Ride       *ride.Service
	Records    notification.Store
	Hub        *notification.Hub
	Dispatcher *notification.Dispatcher
	// Relay is nil when no Redis is configured; the hub is then fed directly.
	Relay *notification.Relay
	kafka *notification.KafkaNotifier
}

// NewServices builds every service on Postgres when d.DB is set and on one
// shared in-memory transactor otherwise.
func NewServices(d Deps) *Services {
	var (
		tx        infra.Transactor
		store     ledger.Store
		rides     ride.Repository
		records   notification.Store
		usersRepo identity.Repository
	)
	if d.DB != nil {
		tx = infra.NewPostgresTransactor(d.DB)
		store = ledger.NewPostgresStore(d.DB)
		rides = ride.NewPostgresRepository(d.DB)
		records = notification.NewPostgresStore(d.DB)
		usersRepo = identity.NewPostgresRepository(d.DB)
	} else {
		mem := infra.NewMemoryTransactor()
		tx = mem
		store = ledger.NewInMemory(mem)
		rides = ride.NewMemoryRepository(mem)
		records = notification.NewMemoryStore(mem)
		usersRepo = identity.NewMemoryRepository()
	}

	s := &Services{Records: records}
	s.Identity = identity.NewService(usersRepo, d.Logger)
	s.Auth = auth.NewService(d.Cfg, usersRepo)
	s.Wallet = wallet.NewService(store, tx, d.Cfg.HouseUserID, d.Logger)
	s.Hub = notification.NewHub(s.Auth, d.Logger)

	sinks := notification.Multi{notification.NewLoggerNotifier(d.Logger)}
	if d.Cache != nil {
		sinks = append(sinks, notification.NewRedisNotifier(d.Cache, notification.DefaultChannel))
		s.Relay = notification.NewRelay(d.Cache, notification.DefaultChannel, s.Hub, d.Logger)
	} else {
		sinks = append(sinks, s.Hub)
	}
	if len(d.Cfg.KafkaBrokers) > 0 {
		s.kafka = notification.NewKafkaNotifier(d.Cfg.KafkaBrokers, d.Cfg.KafkaTopic)
		sinks = append(sinks, s.kafka)
	}
	s.Dispatcher = notification.NewDispatcher(sinks, d.Cfg.EventQueueSize, d.Logger)

	s.Ride = ride.NewService(rides, s.Wallet, tx, records, s.Dispatcher, s.Identity, d.Logger)
	return s
}

// Bootstrap provisions the house wallet and, when configured, the admin
// account.
func (s *Services) Bootstrap(ctx context.Context, d Deps) error {
	if err := s.Wallet.EnsureHouseWallet(ctx); err != nil {
		return fmt.Errorf("house wallet: %w", err)
	}
	if d.Cfg.AdminPhone == "" || d.Cfg.AdminPIN == "" {
		return nil
	}
	_, err := s.Identity.Provision(ctx, identity.Registration{
		Credentials: identity.Credentials{Phone: d.Cfg.AdminPhone, PIN: d.Cfg.AdminPIN},
		Name:        "Administrator",
		Role:        identity.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("provision admin: %w", err)
	}
	return nil
}

// Close releases the optional Kafka writer.
func (s *Services) Close() error {
	if s.kafka != nil {
		return s.kafka.Close()
	}
	return nil
}
