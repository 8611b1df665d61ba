package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/pipeline"
	"tashkeela.com/diac/redis"
	"tashkeela.com/diac/rmq"
	"tashkeela.com/diac/s3client"
	"tashkeela.com/diac/tasks"
)

type Config struct {
	TaskMaxRetries int    `envconfig:"DIAC_WORKER_MAX_RETRIES" default:"3"`
	Sender         string `envconfig:"DIAC_WORKER_NAME" default:"diac"`
	KeyPrefix      string `envconfig:"DIAC_WORKER_KEY_PREFIX" default:"diac:"`
	// DrainTimeout bounds how long a stopping worker waits for running jobs
	// before cancelling them.
	DrainTimeout time.Duration `envconfig:"DIAC_WORKER_DRAIN_TIMEOUT" default:"30s"`
}

// Worker consumes decode jobs from RabbitMQ. Job texts live in S3 and job
// state in Redis.
type Worker struct {
	config   Config
	redis    redisTransactions
	s3       s3Transactions
	rmq      rmqTransactions
	logger   *zerolog.Logger
	decode   pipeline.TextDecoder
	inFlight sync.WaitGroup

	// connectRMQ dials RabbitMQ; nil means dialRMQ.
	connectRMQ func() (rmqTransactions, error)
}

func New(decode pipeline.TextDecoder) (*Worker, error) {
	workerLogger := logger.NewLogger("Worker")

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		workerLogger.Error().Err(err).Msg("Could not read config")
		return nil, err
	}

	worker := Worker{
		config: config,
		logger: &workerLogger,
		decode: decode,
	}
	if err := worker.refreshRMQClient(); err != nil {
		workerLogger.Error().Err(err).Msg("Could not create RMQ client")
		return nil, err
	}
	if err := worker.refreshS3Client(); err != nil {
		workerLogger.Error().Err(err).Msg("Could not create S3 client")
		worker.rmq.close()
		return nil, err
	}
	if err := worker.refreshRedisClient(); err != nil {
		workerLogger.Error().Err(err).Msg("Could not create Redis client")
		worker.rmq.close()
		return nil, err
	}
	return &worker, nil
}

// StartWorker handles deliveries until ctx is done or the RMQ connection
// cannot be re-established. Jobs run on a context of their own, so a job
// already started is finished, replied to and acknowledged before StartWorker
// returns; only jobs outliving DrainTimeout are cancelled.
func (worker *Worker) StartWorker(ctx context.Context) error {
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer worker.Close()
	defer cancelJobs()
	defer worker.drain(cancelJobs)
	for {
		select {
		case <-ctx.Done():
			worker.logger.Info().Msg("Context done, stopping worker")
			return nil
		case delivery, ok := <-worker.rmq.getDeliveriesCh():
			if ok {
				worker.inFlight.Add(1)
				go func() {
					defer worker.inFlight.Done()
					worker.processMessage(jobCtx, &delivery)
				}()
				continue
			}
			worker.logger.Error().Msg("Deliveries channel closed, trying to refresh RMQ client")
			if err := worker.reconnectRMQ(); err != nil {
				return fmt.Errorf(
					"rmq deliveries channel has been closed and refresh returned error: %w",
					err,
				)
			}
		case rmqErr := <-worker.rmq.getRespChanErrorsCh():
			if rmqErr == nil {
				continue
			}
			worker.logger.Err(rmqErr).Msg("Response connection received error, trying to refresh RMQ client")
			if err := worker.reconnectRMQ(); err != nil {
				return fmt.Errorf(
					"response connection received error and refresh failed with: %w",
					err,
				)
			}
		case rmqErr := <-worker.rmq.getReqChanErrorsCh():
			if rmqErr == nil {
				continue
			}
			worker.logger.Err(rmqErr).Msg("Request connection received error, trying to refresh RMQ client")
			if err := worker.reconnectRMQ(); err != nil {
				return fmt.Errorf(
					"request connection received error and refresh failed with: %w",
					err,
				)
			}
		}
	}
}

// drain waits for running jobs, cancelling them once DrainTimeout passes.
func (worker *Worker) drain(cancelJobs context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		worker.inFlight.Wait()
		close(done)
	}()
	timer := time.NewTimer(worker.config.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		worker.logger.Warn().Dur("drain_timeout", worker.config.DrainTimeout).Msg("Jobs still running, cancelling them")
		cancelJobs()
		<-done
	}
}

// reconnectRMQ swaps the RMQ client once running jobs have replied and
// acknowledged on the channels of the client they started with.
func (worker *Worker) reconnectRMQ() error {
	worker.inFlight.Wait()
	return worker.refreshRMQClient()
}

func (worker *Worker) Close() {
	worker.redis.close()
	worker.s3.close()
	worker.rmq.close()
}

func (worker *Worker) refreshRedisClient() error {
	worker.logger.Info().Msg("Refreshing Redis client")
	if oldClient := worker.redis; oldClient != nil {
		defer oldClient.close()
	}
	client, err := redis.NewClientFromEnv()
	if err != nil {
		worker.logger.Err(err).Msg("Failed to refresh Redis client")
		return err
	}
	worker.redis = &redisClientWrapper{tasks.NewClient(client, worker.config.KeyPrefix)}
	worker.logger.Info().Msg("Refreshed Redis client")
	return nil
}

func (worker *Worker) refreshRMQClient() error {
	worker.logger.Info().Msg("Refreshing RMQ client")
	if oldClient := worker.rmq; oldClient != nil {
		defer oldClient.close()
	}
	connect := worker.connectRMQ
	if connect == nil {
		connect = worker.dialRMQ
	}
	client, err := connect()
	if err != nil {
		worker.logger.Err(err).Msg("Failed to refresh RMQ client")
		return err
	}
	worker.rmq = client
	worker.logger.Info().Msg("Refreshed RMQ client")
	return nil
}

func (worker *Worker) dialRMQ() (rmqTransactions, error) {
	rmqClient, err := rmq.NewClient()
	if err != nil {
		return nil, err
	}
	return &rmqClientWrapper{rmqClient: rmqClient, sender: worker.config.Sender}, nil
}

func (worker *Worker) refreshS3Client() error {
	worker.logger.Info().Msg("Refreshing S3 client")
	s3Client, err := s3client.New()
	if err != nil {
		worker.logger.Err(err).Msg("Failed to refresh S3 client")
		return err
	}
	worker.s3 = &s3ClientWrapper{s3Client}
	worker.logger.Info().Msg("Refreshed S3 client")
	return nil
}
