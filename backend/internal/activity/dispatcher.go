package activity

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var ErrDispatcherClosed = errors.New("activity dispatcher closed")

// Dispatcher：本地有界队列 + worker 异步发送 + 有限重试。
// - 不阻塞连接的读写循环（只负责入队）
// - Kafka 短暂不可用时靠队列吸收
// - 队列满且 ctx 到期时丢弃，活动事件不要求必达
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan PeerEvent
	sem   *Semaphore
	wg    sync.WaitGroup

	// 保护 closed；Enqueue 持读锁入队，Close 持写锁关闭 queue
	mu     sync.RWMutex
	closed bool

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type Options struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// MaxInFlight 同时进行的 SendMessage 数量上限
	MaxInFlight int
}

func NewDispatcher(producer sarama.SyncProducer, topic string, opt Options) *Dispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.QueueSize < 0 {
		opt.QueueSize = 0
	}
	if opt.MaxInFlight <= 0 {
		opt.MaxInFlight = opt.Workers
	}
	d := &Dispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan PeerEvent, opt.QueueSize),
		sem:         NewSemaphore(opt.MaxInFlight),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// Enqueue 把事件放入本地队列，队列满时等待直到 ctx 结束；Close 之后返回 ErrDispatcherClosed
func (d *Dispatcher) Enqueue(ctx context.Context, evt PeerEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新事件，等待队列中的事件发送完毕
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *Dispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *Dispatcher) sendWithRetry(workerID int, evt PeerEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		// worker 允许一直等待（不影响连接主链路）
		_ = d.sem.Acquire(context.Background())
		err := d.sendOnce(evt)
		_ = d.sem.Release()

		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			log.Printf("kafka send failed, drop event type=%s room=%s client=%s worker=%d err=%v",
				evt.EventType, evt.Room, evt.ClientID, workerID, err)
			return
		}

		// 退避，每次退避时间 x2
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if d.maxBackoff > 0 && backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *Dispatcher) sendOnce(evt PeerEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		// 以 room 做 key，同一房间的事件落在同一分区，保持顺序
		Key:   sarama.StringEncoder(evt.Room),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
