// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/leadreach-backend/internal/channel"
	"github.com/unclebandit/leadreach-backend/internal/config"
	"github.com/unclebandit/leadreach-backend/internal/db"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/queue"
	"github.com/unclebandit/leadreach-backend/internal/repository"
	"github.com/unclebandit/leadreach-backend/internal/service"
	"github.com/unclebandit/leadreach-backend/internal/textgen"
)

const maxConsumeRetries = 3

// The worker drains the normalized inbound-message queue. Providers that
// can't call our webhooks push replies here; both paths end in the same
// reply listener.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logger := observability.NewLogger()

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	fmt.Println("✅ Connected to Postgres")

	amqpClient, err := queue.DialAMQP(cfg.AMQP.URL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to RabbitMQ: %v", err)
	}
	defer amqpClient.Close()
	fmt.Println("✅ Connected to RabbitMQ")

	leadRepo := &repository.LeadRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	enrollmentRepo := &repository.EnrollmentRepository{DB: database}
	messageRepo := &repository.MessageRepository{DB: database}
	autoResponseRepo := &repository.AutoResponseRepository{DB: database}

	events := queue.NewInMemoryQueue()
	events.Subscribe(queue.TopicMessageStatus, func(payload any) error {
		return amqpClient.PublishJSON(cfg.AMQP.StatusQueue, payload)
	})

	tracker := service.NewStatusTracker(messageRepo, logger)
	dispatcher := channel.NewDispatcher(tracker, messageRepo, events, logger, cfg.Scheduler.SendTimeout)
	registerAdapters(dispatcher, cfg.Services)

	var generator textgen.Generator
	if cfg.Services.OpenAIAPIKey != "" {
		gen, err := textgen.NewOpenAIGenerator(cfg.Services.OpenAIAPIKey, logger)
		if err != nil {
			log.Fatalf("❌ Failed to init text generator: %v", err)
		}
		generator = gen
	}

	locker := service.NewLeadLocker()
	enrollments := service.NewEnrollmentService(enrollmentRepo, campaignRepo, leadRepo, logger)
	autoResponder := service.NewAutoResponder(
		autoResponseRepo, leadRepo, messageRepo, generator, dispatcher, logger,
		cfg.Scheduler.GenerateTimeout,
	)
	listener := service.NewReplyListener(leadRepo, messageRepo, enrollments, autoResponder, locker, events, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		fmt.Println("🛑 Shutting down worker...")
		cancel()
	}()

	fmt.Printf("👷 Worker consuming %s\n", cfg.AMQP.InboundQueue)
	err = amqpClient.Consume(ctx, cfg.AMQP.InboundQueue, maxConsumeRetries, func(body []byte) error {
		var ev model.InboundMessage
		if err := json.Unmarshal(body, &ev); err != nil {
			// Malformed payloads are logged and dropped, not retried.
			logger.Error(ctx, "dropping malformed inbound payload", err)
			return nil
		}
		return listener.HandleInbound(ctx, ev)
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("❌ Consumer stopped: %v", err)
	}
}

func registerAdapters(d *channel.Dispatcher, svc config.ServicesConfig) {
	if svc.TwilioAccountSID != "" && svc.TwilioWhatsAppFrom != "" {
		d.Register(channel.NewTwilioAdapter(svc.TwilioAccountSID, svc.TwilioAuthToken, svc.TwilioWhatsAppFrom, model.ChannelWhatsApp))
	}
	if svc.TwilioAccountSID != "" && svc.TwilioSMSFrom != "" {
		d.Register(channel.NewTwilioAdapter(svc.TwilioAccountSID, svc.TwilioAuthToken, svc.TwilioSMSFrom, model.ChannelSMS))
	}
	if svc.ResendAPIKey != "" {
		d.Register(channel.NewResendAdapter(svc.ResendAPIKey, svc.DefaultEmailSender))
	}
	if svc.WeChatGatewayURL != "" {
		d.Register(channel.NewWebGatewayAdapter(svc.WeChatGatewayURL, svc.WeChatGatewayToken, model.ChannelWeChat))
	}
}
