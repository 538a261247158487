package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/middleware"
	"github.com/towlink/towlink/internal/wallet"
)

// RegisterWalletRoutes wires wallet and admin moderation endpoints. Money
// movements honour the Idempotency-Key header when Redis is configured.
func RegisterWalletRoutes(r fiber.Router, d Deps, s *Services, authn fiber.Handler) {
	h := wallet.NewHandler(s.Wallet)
	idem := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)

	group := r.Group("/wallet", authn)
	group.Get("", h.Get)
	group.Get("/transactions", h.Transactions)
	group.Post("/credit", middleware.RequireRole(identity.RoleTrucker), idem, h.Credit)
	group.Post("/debit", middleware.RequireRole(identity.RoleClient), idem, h.Debit)

	admin := r.Group("/admin", authn, middleware.RequireRole(identity.RoleAdmin))
	admin.Patch("/transaction/:id/status", h.SetStatus)
	admin.Get("/transactions", h.AdminTransactions)
}
