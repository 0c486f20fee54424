// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/leadreach-backend/internal/channel"
	"github.com/unclebandit/leadreach-backend/internal/config"
	"github.com/unclebandit/leadreach-backend/internal/controller"
	"github.com/unclebandit/leadreach-backend/internal/db"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/queue"
	"github.com/unclebandit/leadreach-backend/internal/repository"
	"github.com/unclebandit/leadreach-backend/internal/service"
	"github.com/unclebandit/leadreach-backend/internal/textgen"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logger := observability.NewLogger()
	ctx := context.Background()

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	fmt.Println("✅ Connected to Postgres")

	leadRepo := &repository.LeadRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	enrollmentRepo := &repository.EnrollmentRepository{DB: database}
	messageRepo := &repository.MessageRepository{DB: database}
	autoResponseRepo := &repository.AutoResponseRepository{DB: database}

	events := queue.NewInMemoryQueue()

	// Mirror status events onto the durable AMQP feed when a broker is
	// reachable. The server runs fine without one.
	if amqpClient, err := queue.DialAMQP(cfg.AMQP.URL); err != nil {
		fmt.Printf("⚠️  AMQP unavailable, status events stay in-process: %v\n", err)
	} else {
		defer amqpClient.Close()
		events.Subscribe(queue.TopicMessageStatus, func(payload any) error {
			return amqpClient.PublishJSON(cfg.AMQP.StatusQueue, payload)
		})
		fmt.Println("✅ Connected to RabbitMQ")
	}

	tracker := service.NewStatusTracker(messageRepo, logger)
	dispatcher := channel.NewDispatcher(tracker, messageRepo, events, logger, cfg.Scheduler.SendTimeout)
	registerAdapters(dispatcher, cfg.Services)

	locker := service.NewLeadLocker()
	enrollments := service.NewEnrollmentService(enrollmentRepo, campaignRepo, leadRepo, logger)
	executor := service.NewStepExecutor(
		leadRepo, campaignRepo, messageRepo, enrollments, dispatcher, locker, logger,
		cfg.Scheduler.HeartbeatInterval, cfg.Scheduler.MaxStepRetries,
	)

	var generator textgen.Generator
	if cfg.Services.OpenAIAPIKey != "" {
		gen, err := textgen.NewOpenAIGenerator(cfg.Services.OpenAIAPIKey, logger)
		if err != nil {
			log.Fatalf("❌ Failed to init text generator: %v", err)
		}
		generator = gen
	} else {
		fmt.Println("⚠️  OPENAI_API_KEY not set, auto-responses disabled")
	}

	autoResponder := service.NewAutoResponder(
		autoResponseRepo, leadRepo, messageRepo, generator, dispatcher, logger,
		cfg.Scheduler.GenerateTimeout,
	)
	listener := service.NewReplyListener(leadRepo, messageRepo, enrollments, autoResponder, locker, events, logger)

	scheduler := service.NewScheduler(enrollments, executor, logger, cfg.Scheduler.HeartbeatInterval)
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	go scheduler.Start(schedulerCtx)

	enrollmentController := controller.NewEnrollmentController(enrollments, executor)
	campaignController := controller.NewCampaignController(campaignRepo, leadRepo)
	leadController := controller.NewLeadController(leadRepo, messageRepo, enrollmentRepo)
	webhookController := controller.NewWebhookController(listener, tracker, messageRepo, events)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", campaignController.CreateCampaign)
		r.Get("/", campaignController.ListCampaigns)
		r.Get("/{id}", campaignController.GetCampaign)
		r.Patch("/{id}/status", campaignController.UpdateCampaignStatus)
		r.Get("/{id}/steps/{index}/preview", campaignController.PreviewStep)
	})

	r.Route("/leads", func(r chi.Router) {
		r.Post("/", leadController.CreateLead)
		r.Get("/", leadController.ListLeads)
		r.Get("/{id}", leadController.GetLead)
		r.Post("/{id}/stop", enrollmentController.StopLead)
		r.Post("/{id}/messages", enrollmentController.ManualSend)
	})

	r.Post("/enrollments", enrollmentController.Enroll)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/inbound", webhookController.Inbound)
	})
	r.Patch("/messages/{id}/status", webhookController.MessageStatus)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		fmt.Printf("🚀 Server running on port %d\n", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("🛑 Shutting down...")
	stopScheduler()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}

// registerAdapters installs every channel whose credentials are configured.
// Unconfigured channels simply have no adapter; sends to them fail as
// transport errors.
func registerAdapters(d *channel.Dispatcher, svc config.ServicesConfig) {
	if svc.TwilioAccountSID != "" && svc.TwilioWhatsAppFrom != "" {
		d.Register(channel.NewTwilioAdapter(svc.TwilioAccountSID, svc.TwilioAuthToken, svc.TwilioWhatsAppFrom, model.ChannelWhatsApp))
		fmt.Println("✅ WhatsApp adapter registered")
	}
	if svc.TwilioAccountSID != "" && svc.TwilioSMSFrom != "" {
		d.Register(channel.NewTwilioAdapter(svc.TwilioAccountSID, svc.TwilioAuthToken, svc.TwilioSMSFrom, model.ChannelSMS))
		fmt.Println("✅ SMS adapter registered")
	}
	if svc.ResendAPIKey != "" {
		d.Register(channel.NewResendAdapter(svc.ResendAPIKey, svc.DefaultEmailSender))
		fmt.Println("✅ Email adapter registered")
	}
	if svc.WeChatGatewayURL != "" {
		d.Register(channel.NewWebGatewayAdapter(svc.WeChatGatewayURL, svc.WeChatGatewayToken, model.ChannelWeChat))
		fmt.Println("✅ WeChat adapter registered")
	}
}
