package main

import (
	"encoding/json"
	"log"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/unclebandit/waleopard-backend/internal/config"
	"github.com/unclebandit/waleopard-backend/internal/db"
	"github.com/unclebandit/waleopard-backend/internal/logger"
	"github.com/unclebandit/waleopard-backend/internal/provider"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg := config.Load()
	logg := logger.New(cfg.LogLevel)

	conn, err := db.Connect()
	if err != nil {
		log.Fatal("failed to connect to DB: ", err)
	}
	defer conn.Close()

	worker := &service.DispatchWorker{
		CampaignRepo: &repository.CampaignRepository{DB: conn},
		ContactRepo:  &repository.ContactRepository{DB: conn},
		BindingRepo:  &repository.BindingRepository{DB: conn},
		Sender:       provider.NewWhatsAppClient(cfg.GraphAPIBaseURL, cfg.GraphAPIToken),
		Logger:       logg,
	}

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ: ", err)
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		log.Fatal("failed to open a channel: ", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		service.SendTopic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		log.Fatal("failed to declare queue: ", err)
	}

	if err := ch.Qos(8, 0, false); err != nil {
		log.Fatal("failed to set QoS: ", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck off; acks follow Handle's verdict
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal("failed to register consumer: ", err)
	}

	logg.Info("dispatch worker running", "queue", q.Name)
	for d := range msgs {
		var job service.SendJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			logg.Warn("discarding malformed send job", "error", err)
			d.Ack(false)
			continue
		}

		// A non-nil error means the send is worth redelivering; the stamped
		// provider id makes a duplicate redelivery harmless.
		if err := worker.Handle(job); err != nil {
			d.Nack(false, true)
			continue
		}
		d.Ack(false)
	}
}
