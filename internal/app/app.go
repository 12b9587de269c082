package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hzblue/lottery-backend/internal/config"
	"github.com/hzblue/lottery-backend/internal/handlers"
	"github.com/hzblue/lottery-backend/internal/ledger"
	"github.com/hzblue/lottery-backend/internal/lottery"
	"github.com/hzblue/lottery-backend/internal/store"
)

func Run() error {
	_ = godotenv.Load()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)

	cfg := config.FromEnv()

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return err
	}
	st := store.New(db)
	if err := st.AutoMigrate(); err != nil {
		return err
	}

	var led ledger.Ledger
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logrus.WithError(err).Warn("redis unreachable, running transactional draws only")
		} else {
			led = ledger.NewRedisLedger(rdb)
			logrus.Infof("fast-path ledger on %s", cfg.RedisAddr)
		}
	}

	cache := lottery.NewPrizeCache(st)
	selector := lottery.NewSelector(rand.NewSource(time.Now().UnixNano()))
	draws := lottery.NewService(st, led, cache, selector, cfg.DrawCooldown)

	ctx := context.Background()
	var reconciler *lottery.Reconciler
	if led != nil {
		reconciler = lottery.NewReconciler(st, led)
		if err := reconciler.SeedAll(ctx); err != nil {
			logrus.WithError(err).Warn("initial stock seed failed")
		}
		go reconciler.Run(ctx, cfg.StockSyncInterval)
	}

	if err := cache.RefreshOnce(ctx); err != nil {
		logrus.WithError(err).Warn("initial prize cache refresh failed")
	}
	go cache.Run(ctx, cfg.CacheRefresh)

	r := gin.Default()
	h := handlers.New(st, draws, reconciler, cfg)
	h.RegisterRoutes(r)

	logrus.Infof("listening on :%s", cfg.AppPort)
	return r.Run(":" + cfg.AppPort)
}
