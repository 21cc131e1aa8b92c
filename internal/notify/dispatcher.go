package notify

import (
	"context"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"go.uber.org/zap"
)

const (
	defaultBufferSize   = 256
	defaultWorkerCount  = 2
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
	defaultSendTimeout  = 30 * time.Second
)

// DispatcherConfig sizes the in-memory queue.
type DispatcherConfig struct {
	BufferSize   int
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	SendTimeout  time.Duration
}

func (config DispatcherConfig) withDefaults() DispatcherConfig {
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	if config.Workers <= 0 {
		config.Workers = defaultWorkerCount
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.RetryBackoff < 0 {
		config.RetryBackoff = 0
	} else if config.RetryBackoff == 0 {
		config.RetryBackoff = defaultRetryBackoff
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaultSendTimeout
	}
	return config
}

// Dispatcher is an in-process travel.Notifier backed by a buffered channel and a worker pool.
// Enqueue never waits for delivery; a full buffer is reported as ErrQueueFull.
type Dispatcher struct {
	config  DispatcherConfig
	sender  Sender
	logger  *zap.Logger
	jobs    chan Message
	mutex   sync.RWMutex
	closed  bool
	started sync.Once
	wg      sync.WaitGroup
	stop    chan struct{}
}

// NewDispatcher builds a dispatcher. Call Start to launch workers.
func NewDispatcher(sender Sender, logger *zap.Logger, config DispatcherConfig) (*Dispatcher, error) {
	if sender == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()
	return &Dispatcher{
		config: config,
		sender: sender,
		logger: logger,
		jobs:   make(chan Message, config.BufferSize),
		stop:   make(chan struct{}),
	}, nil
}

// Start launches the worker goroutines once.
func (dispatcher *Dispatcher) Start() {
	dispatcher.started.Do(func() {
		for index := 0; index < dispatcher.config.Workers; index++ {
			dispatcher.wg.Add(1)
			go dispatcher.worker()
		}
	})
}

func (dispatcher *Dispatcher) Enqueue(_ context.Context, notification travel.Notification) error {
	message, err := NewMessage(notification)
	if err != nil {
		return err
	}
	dispatcher.mutex.RLock()
	defer dispatcher.mutex.RUnlock()
	if dispatcher.closed {
		return ErrClosed
	}
	select {
	case dispatcher.jobs <- message:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work, drains queued messages, and waits for workers.
func (dispatcher *Dispatcher) Close() {
	dispatcher.mutex.Lock()
	if dispatcher.closed {
		dispatcher.mutex.Unlock()
		return
	}
	dispatcher.closed = true
	close(dispatcher.jobs)
	dispatcher.mutex.Unlock()
	dispatcher.wg.Wait()
}

// Abort stops retries in flight and then closes the dispatcher.
func (dispatcher *Dispatcher) Abort() {
	select {
	case <-dispatcher.stop:
	default:
		close(dispatcher.stop)
	}
	dispatcher.Close()
}

func (dispatcher *Dispatcher) worker() {
	defer dispatcher.wg.Done()
	for message := range dispatcher.jobs {
		dispatcher.deliver(message)
	}
}

func (dispatcher *Dispatcher) deliver(message Message) {
	var lastErr error
	for attempt := 1; attempt <= dispatcher.config.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), dispatcher.config.SendTimeout)
		lastErr = dispatcher.sender.Send(ctx, message)
		cancel()
		if lastErr == nil {
			dispatcher.logger.Debug("notification sent",
				zap.String("message_id", message.ID),
				zap.String("recipient", message.Recipient),
				zap.Int("attempt", attempt),
			)
			return
		}
		dispatcher.logger.Warn("notification send failed",
			zap.String("message_id", message.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == dispatcher.config.MaxAttempts {
			break
		}
		select {
		case <-dispatcher.stop:
			return
		case <-time.After(dispatcher.config.RetryBackoff * time.Duration(attempt)):
		}
	}
	dispatcher.logger.Error("notification dropped",
		zap.String("message_id", message.ID),
		zap.String("recipient", message.Recipient),
		zap.String("subject", message.Subject),
		zap.Error(lastErr),
	)
}
