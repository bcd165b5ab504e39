package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/wafflestudio18-5/team2-server/backoffice"
	"github.com/wafflestudio18-5/team2-server/cache"
	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/database"
	"github.com/wafflestudio18-5/team2-server/email"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/story"
	"github.com/wafflestudio18-5/team2-server/token"
	"github.com/wafflestudio18-5/team2-server/user"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db := common.ConnectDb()
	if db == nil {
		log.Fatal("failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("failed to run migrations", "err", err)
	}

	var store cache.Store
	if redisStore, err := cache.NewRedisStore(log); err != nil {
		log.Warn("redis unavailable, using in-process listing cache", "err", err)
		store = cache.NewMemoryStore()
	} else {
		store = redisStore
	}

	router := gin.Default()
	router.Use(cors.Default())

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable not set")
	}

	cookieStore := cookie.NewStore([]byte(sessionSecret))
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})
	router.Use(sessions.Sessions("wadium-session", cookieStore))

	tokens := token.NewStore(db, email.NewEmailService(), log)

	// No external identity provider wired by default; /user/social/
	// reports not-implemented until one is configured.
	userModule := user.NewUserModule(db, tokens, nil, log)
	userModule.RegisterRoutes(router)

	storyModule := story.NewStoryModule(db, store, userModule.Auth(), log)
	storyModule.RegisterRoutes(router)

	backofficeModule := backoffice.NewBackofficeModule(db, log)
	backofficeModule.RegisterRoutes(router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info("starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("failed to start server", "err", err)
	}
}
