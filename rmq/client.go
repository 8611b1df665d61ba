package rmq

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"tashkeela.com/diac/logger"
)

type Config struct {
	Host                    string `envconfig:"DIAC_RMQ_HOST" required:"true"`
	Port                    string `envconfig:"DIAC_RMQ_PORT" default:"5672"`
	Username                string `envconfig:"DIAC_RMQ_USERNAME" required:"true"`
	Password                string `envconfig:"DIAC_RMQ_PASSWORD" required:"true"`
	Exchange                string `envconfig:"DIAC_RMQ_EXCHANGE" default:"diac-exchange"`
	MaxParallelRequestCount int    `envconfig:"DIAC_RMQ_MAX_PARALLEL_REQUESTS" default:"5"`
	TaskQueue               string `envconfig:"DIAC_RMQ_TASK_QUEUE" default:"diac-decode"`
	ReplyQueue              string `envconfig:"DIAC_RMQ_REPLY_QUEUE" default:"diac-decoded"`
}

// Client holds one connection for consuming tasks and one for replies, so a
// failure on either side can be told apart.
type Client struct {
	Deliveries     <-chan amqp.Delivery
	ReqChanErrors  <-chan *amqp.Error
	RespChanErrors <-chan *amqp.Error
	config         Config
	reqConn        *amqp.Connection
	respConn       *amqp.Connection
	respChannel    *amqp.Channel
	logger         *zerolog.Logger
}

func ReadConfig() (Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	return config, err
}

func NewClient() (*Client, error) {
	rmqLogger := logger.NewLogger("RMQ client")
	config, err := ReadConfig()
	if err != nil {
		rmqLogger.Error().Err(err).Msg("Could not read env config")
		return nil, err
	}
	return NewClientWithConfig(config)
}

func NewClientWithConfig(config Config) (*Client, error) {
	rmqLogger := logger.NewLogger("RMQ client")
	url := getURL(config)
	respConn, respChannel, err := setup(url)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	reqConn, reqChannel, err := setup(url)
	if err != nil {
		_ = respConn.Close()
		return nil, fmt.Errorf("failed connection: %w", err)
	}

	if err := declare(reqChannel, config, config.TaskQueue); err != nil {
		closeBoth(reqConn, respConn)
		return nil, err
	}
	if err := declare(respChannel, config, config.ReplyQueue); err != nil {
		closeBoth(reqConn, respConn)
		return nil, err
	}
	if err := reqChannel.Qos(config.MaxParallelRequestCount, 0, false); err != nil {
		closeBoth(reqConn, respConn)
		return nil, fmt.Errorf("qos: %w", err)
	}

	deliveries, err := reqChannel.Consume(
		config.TaskQueue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		closeBoth(reqConn, respConn)
		return nil, fmt.Errorf("consume deliveries: %w", err)
	}
	reqChanErrors := reqChannel.NotifyClose(make(chan *amqp.Error))
	respChanErrors := respChannel.NotifyClose(make(chan *amqp.Error))

	rmqLogger.Info().Str("queue", config.TaskQueue).Str("reply_queue", config.ReplyQueue).Msg("Connected to RMQ")
	return &Client{
		Deliveries:     deliveries,
		ReqChanErrors:  reqChanErrors,
		RespChanErrors: respChanErrors,
		config:         config,
		reqConn:        reqConn,
		respConn:       respConn,
		respChannel:    respChannel,
		logger:         &rmqLogger,
	}, nil
}

// declare makes sure a durable queue exists and is bound to the exchange
// under its own name.
func declare(ch *amqp.Channel, config Config, queue string) error {
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	if config.Exchange == "" {
		return nil
	}
	if err := ch.ExchangeDeclare(config.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", config.Exchange, err)
	}
	if err := ch.QueueBind(queue, queue, config.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", queue, err)
	}
	return nil
}

func (c *Client) SendReply(msg amqp.Publishing) error {
	return c.respChannel.Publish(
		c.config.Exchange,
		c.config.ReplyQueue,
		false,
		false,
		msg)
}

func (c *Client) Close() {
	closeBoth(c.reqConn, c.respConn)
}

func closeBoth(a, b *amqp.Connection) {
	_ = a.Close()
	_ = b.Close()
}

func getURL(config Config) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s", config.Username, config.Password, config.Host, config.Port)
}

func setup(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
