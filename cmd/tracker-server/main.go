package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/OilChangeTracker/OilChangeTracker/internal/advisor"
	"github.com/OilChangeTracker/OilChangeTracker/internal/backup"
	"github.com/OilChangeTracker/OilChangeTracker/internal/common/config"
	"github.com/OilChangeTracker/OilChangeTracker/internal/common/db"
	"github.com/OilChangeTracker/OilChangeTracker/internal/common/logger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/common/netinfo"
	"github.com/OilChangeTracker/OilChangeTracker/internal/common/server"
	"github.com/OilChangeTracker/OilChangeTracker/internal/common/tracing"
	"github.com/OilChangeTracker/OilChangeTracker/internal/customer"
	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/telemetry"
	"github.com/OilChangeTracker/OilChangeTracker/internal/vehicle"
)

func main() {
	var (
		configPath = flag.String("config", "configs/tracker-server.json", "config file path")
		consulKey  = flag.String("consul-kv", "", "load config from Consul KV instead of file")
		specsPath  = flag.String("specs", "static/oil_specs.json", "oil spec table path")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if *consulKey != "" {
		kvCfg, err := config.LoadConfigFromConsulKV(cfg.Consul.Host, cfg.Consul.Port, *consulKey)
		if err != nil {
			logrus.Warnf("consul kv config unavailable, using local config: %v", err)
		} else {
			cfg = kvCfg
		}
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		logrus.Fatalf("init logger: %v", err)
	}

	tracer, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("tracing disabled: %v", err)
	} else {
		opentracing.SetGlobalTracer(tracer)
		defer closer.Close()
	}

	gormDB, err := db.NewMySQL(
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.User, cfg.Database.Password, cfg.Database.Database,
		cfg.Database.MaxIdle, cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	err = gormDB.AutoMigrate(
		&customer.Customer{}, &customer.Contact{},
		&vehicle.Vehicle{}, &vehicle.VinOilSpec{},
		&ledger.Plan{}, &ledger.Entry{},
	)
	if err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	events := telemetry.NewRecorder(cfg.Telemetry.EventsPath)

	specs, err := vehicle.LoadSpecTable(*specsPath)
	if err != nil {
		log.Fatalf("load oil specs: %v", err)
	}

	// 组装：车辆仓库同时充当台账的车辆查询口
	vehicleRepo := vehicle.NewRepo(gormDB)
	ledgerSvc := ledger.NewService(gormDB, vehicleRepo)
	customerSvc := customer.NewService(gormDB, ledgerSvc)
	vehicleSvc := vehicle.NewService(
		vehicleRepo,
		customer.NewRepo(gormDB),
		vehicle.NewNHTSAClient(),
		vehicle.NewPlateLookup(cfg.PlateLookup),
		specs,
		log,
	)

	ledgerHandler := ledger.NewHandler(ledgerSvc, events, log)
	customerHandler := customer.NewHandler(customerSvc, events, log)
	vehicleHandler := vehicle.NewHandler(vehicleSvc, events, log)

	adv := advisor.New(cfg.Telemetry.EventsPath, cfg.Advisor.ReportsDir, cfg.Advisor.WindowDays)

	backupCtx, stopBackup := context.WithCancel(context.Background())
	defer stopBackup()
	backuper := backup.New(gormDB, cfg.Backup.Dir, log)
	if cfg.Backup.Enabled {
		backuper.StartPeriodic(backupCtx, cfg.Backup.IntervalHours)
	}

	info := netinfo.GetHostInfo(cfg.Server.HTTPPort)
	for _, url := range info.URLs {
		log.Infof("reachable at %s", url)
	}

	err = server.RunHTTPServer(cfg, log, func(r *gin.Engine) error {
		customers := r.Group("/customers")
		customerHandler.RegisterRoutes(customers)
		ledgerHandler.RegisterRoutes(customers)

		vehicles := r.Group("/vehicles")
		vehicleHandler.RegisterRoutes(vehicles, customers)

		admin := r.Group("/admin")
		admin.POST("/advisor/run", func(c *gin.Context) {
			report, jsonPath, htmlPath, err := adv.RunOnce()
			if err != nil {
				ledger.AbortWithError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"report":    report,
				"json_path": jsonPath,
				"html_path": htmlPath,
			})
		})
		admin.POST("/backup/run", func(c *gin.Context) {
			path, err := backuper.RunOnce(c.Request.Context())
			if err != nil {
				ledger.AbortWithError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"path": path})
		})
		return nil
	})
	if err != nil {
		log.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}
