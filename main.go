package main

import (
	"github.com/inkwell-app/inkwell-backend/config"
	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/notifications"
	"github.com/inkwell-app/inkwell-backend/realtime"
	"github.com/inkwell-app/inkwell-backend/routes"
	"github.com/inkwell-app/inkwell-backend/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Post{},
		&models.PostCategory{},
		&models.Comment{},
		&models.CommentLike{},
		&models.Notification{},
	)

	store := notifications.NewStore(db)
	// Migrations are done; live query snapshots may now serve.
	store.SetReady()

	hub := realtime.NewHub(store)
	dispatcher := notifications.NewDispatcher(store, hub)

	r := routes.SetupRouter(db, hub, store, dispatcher)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, hub.Shutdown); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
