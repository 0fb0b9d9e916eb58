package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bundlehub/backend/internal/config"
	"github.com/bundlehub/backend/internal/database"
	"github.com/bundlehub/backend/internal/handlers"
	"github.com/bundlehub/backend/internal/middleware"
	"github.com/bundlehub/backend/internal/services"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/bundlehub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	cryptoService := services.NewCryptoService(cfg.Crypto.Secret)
	accessService := services.NewAccessService(db)
	bundleService := services.NewBundleService(db, cryptoService, accessService)
	shareService := services.NewShareService(db, bundleService)
	groupService := services.NewGroupService(db)
	userService := services.NewUserService(db, bundleService)
	cleanupService := services.NewCleanupService(db, bundleService)

	authHandler := handlers.NewAuthHandler(userService)
	bundlesHandler := handlers.NewBundlesHandler(bundleService, accessService)
	sharesHandler := handlers.NewSharesHandler(shareService)
	groupsHandler := handlers.NewGroupsHandler(groupService, bundleService)
	usersHandler := handlers.NewUsersHandler(userService)
	adminHandler := handlers.NewAdminHandler(userService, bundleService, cleanupService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateProfile)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.UpdatePassword)

	bundleRoutes := api.Group("/bundles", authMiddleware.RequireAuth)
	bundleRoutes.Post("/", bundlesHandler.Create)
	bundleRoutes.Get("/", bundlesHandler.List)
	bundleRoutes.Get("/:id", bundlesHandler.Get)
	bundleRoutes.Get("/:id/payload", bundlesHandler.Payload)
	bundleRoutes.Put("/:id", bundlesHandler.Update)
	bundleRoutes.Delete("/:id", bundlesHandler.Delete)
	bundleRoutes.Post("/:id/import", bundlesHandler.Import)
	bundleRoutes.Delete("/:id/reference", bundlesHandler.RemoveFromList)
	bundleRoutes.Post("/:bundleID/shares", sharesHandler.Create)
	bundleRoutes.Get("/:bundleID/shares", sharesHandler.ListForBundle)

	shareRoutes := api.Group("/shares", authMiddleware.RequireAuth)
	shareRoutes.Post("/redeem", sharesHandler.Redeem)
	shareRoutes.Post("/:id/revoke", sharesHandler.Revoke)
	shareRoutes.Delete("/:id", sharesHandler.Delete)
	shareRoutes.Get("/:id/users", sharesHandler.Users)
	shareRoutes.Delete("/:id/users/:userID", sharesHandler.RemoveUser)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Get("/:id/members", groupsHandler.Members)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:userID", groupsHandler.RemoveMember)
	groupRoutes.Get("/:id/bundles", groupsHandler.ListBundles)

	subAccountRoutes := api.Group("/sub-accounts", authMiddleware.RequireAuth)
	subAccountRoutes.Post("/", usersHandler.CreateSubAccount)
	subAccountRoutes.Get("/", usersHandler.ListSubAccounts)
	subAccountRoutes.Put("/:id", usersHandler.UpdateSubAccount)
	subAccountRoutes.Delete("/:id", usersHandler.DeleteSubAccount)

	api.Get("/stats", authMiddleware.RequireAuth, usersHandler.Stats)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/accounts", adminHandler.ListMainAccounts)
	adminRoutes.Post("/accounts", adminHandler.CreateMainAccount)
	adminRoutes.Post("/accounts/:id/toggle", adminHandler.ToggleStatus)
	adminRoutes.Post("/accounts/:id/toggle-children", adminHandler.ToggleStatusWithChildren)
	adminRoutes.Post("/accounts/:id/role", adminHandler.PromoteRole)
	adminRoutes.Delete("/accounts/:id", adminHandler.DeleteUser)
	adminRoutes.Get("/accounts/:id/bundles", adminHandler.ListUserBundles)
	adminRoutes.Get("/cleanup", adminHandler.CleanupPreview)
	adminRoutes.Post("/cleanup", adminHandler.CleanupExecute)

	stopCleanup := startCleanupLoop(cleanupService, cfg.Cleanup.Interval)
	defer stopCleanup()

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

// startCleanupLoop purges expired bundles and orphans on a fixed interval.
// Runs under the seeded admin's identity for audit logging.
func startCleanupLoop(cleanup *services.CleanupService, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				preview, err := cleanup.Preview()
				if err != nil {
					logger.Error("cleanup_scan_failed", err, nil)
					continue
				}
				if preview.Total() == 0 {
					continue
				}
				if _, err := cleanup.ExecuteCleanup(services.SystemOperatorID); err != nil {
					logger.Error("cleanup_run_failed", err, nil)
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
