package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/config"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/db"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/db/memdb"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/handlers"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/logger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/services"
)

type repositories struct {
	fees       services.FeeRepository
	students   services.StudentRepository
	admissions services.AdmissionRepository
	staff      services.StaffRepository
	close      func()
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	appLog := logger.Get()

	repos, err := openRepositories(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repos.close()

	feeService := services.NewFeeService(repos.fees, repos.students, repos.admissions, services.FeeOptions{
		Structure:           cfg.Fees.Structure,
		DefaultAdmissionFee: cfg.Fees.DefaultAdmissionFee,
		DueIn:               cfg.Fees.DueIn,
		MaxRetries:          cfg.Fees.MaxRetries,
	}, appLog)
	staffService := services.NewStaffService(repos.staff, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, appLog)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = staffService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	cancel()
	if err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}

	router := handlers.NewRouter(
		handlers.NewFeeHandler(feeService, appLog),
		handlers.NewAuthHandler(staffService, appLog),
		appLog,
	)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	log.Info().Str("port", cfg.Server.Port).Str("storage", cfg.Storage).Msg("Starting HTTP server")
	return serve(server, quit, cfg.Server.ShutdownTimeout)
}

// serve runs the server until it fails or stop fires, then shuts it down.
// A listen error is returned to the caller so deferred cleanup still runs.
func serve(server *http.Server, stop <-chan os.Signal, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
		return nil
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}
	log.Info().Msg("Server exited")
	return nil
}

func openRepositories(cfg *config.Config) (*repositories, error) {
	if cfg.Storage == config.StorageMemory {
		students := memdb.NewStudentStore()
		admissions := memdb.NewAdmissionStore()
		seedDemoStudent(cfg, students, admissions)
		return &repositories{
			fees:       memdb.NewFeeStore(),
			students:   students,
			admissions: admissions,
			staff:      memdb.NewStaffStore(),
			close:      func() {},
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := db.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, err
	}
	database := client.Database(cfg.Mongo.Database)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		db.Disconnect(client, 5*time.Second)
		return nil, err
	}
	return &repositories{
		fees:       db.NewFeeStore(database),
		students:   db.NewStudentStore(database),
		admissions: db.NewAdmissionStore(database),
		staff:      db.NewStaffStore(database),
		close:      func() { db.Disconnect(client, 5*time.Second) },
	}, nil
}

// seedDemoStudent gives the in-memory mode one student to collect fees for.
func seedDemoStudent(cfg *config.Config, students *memdb.StudentStore, admissions *memdb.AdmissionStore) {
	classes := cfg.Fees.Structure.Classes()
	if len(classes) == 0 {
		return
	}
	id := students.Put(models.Student{
		Name:        "Demo Student",
		AdmissionNo: "ADM-DEMO",
		Class:       classes[0],
		Section:     "A",
	})
	admissions.Put(models.Admission{
		AdmissionNo:  "ADM-DEMO",
		StudentID:    id,
		AdmissionFee: cfg.Fees.DefaultAdmissionFee,
	})
	log.Info().Str("student_id", id.Hex()).Str("class", classes[0]).Msg("Seeded demo student")
}
