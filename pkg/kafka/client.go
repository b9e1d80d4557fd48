// Package kafka 提供了通过 Kafka 派发和消费导入任务的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"smart-erp-go/internal/config"
	"smart-erp-go/pkg/log"
	"smart-erp-go/pkg/tasks"
)

// TaskProcessor 是可以执行导入任务的服务，消费者只依赖这个接口。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Dispatcher 把导入任务发布到 Kafka 主题，由 StartConsumer 所在的进程执行。
type Dispatcher struct {
	writer messageWriter
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) *Dispatcher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Dispatcher{writer: w}
}

// Dispatch 发布任务。返回的 Job 在消息写入成功后即完成，而不是在导入结束后。
func (d *Dispatcher) Dispatch(ctx context.Context, task tasks.IngestTask) (*tasks.Job, error) {
	msg, err := encodeTask(task)
	if err != nil {
		return nil, err
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return nil, fmt.Errorf("发送导入任务到 Kafka 失败: %w", err)
	}
	job := tasks.NewJob(task.FileID)
	job.Finish(nil)
	return job, nil
}

// Close 关闭底层的生产者。
func (d *Dispatcher) Close() error {
	return d.writer.Close()
}

func encodeTask(task tasks.IngestTask) (kafka.Message, error) {
	value, err := json.Marshal(task)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", task.FileID)),
		Value: value,
	}, nil
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer 启动一个 Kafka 消费者来处理导入任务，直到 ctx 取消。
// 处理结果已经由 Processor 写入文件状态，所以无论成败都提交 offset，不做重试。
// ctx 取消后正在处理的任务会执行完并提交，随后函数返回。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor)
	log.Info("Kafka 消费者已停止")
}

func consume(ctx context.Context, r messageReader, processor TaskProcessor) {
	detached := context.WithoutCancel(ctx)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		handleMessage(detached, processor, m)

		if err := r.CommitMessages(detached, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// handleMessage 解析并同步处理一条消息。格式错误的消息直接丢弃。
func handleMessage(ctx context.Context, processor TaskProcessor, m kafka.Message) {
	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return
	}

	log.Infof("开始处理导入任务: FileID=%d, Name=%s", task.FileID, task.OriginalFilename)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("导入任务失败: FileID=%d, Error: %v", task.FileID, err)
		return
	}
	log.Infof("导入任务处理成功: FileID=%d", task.FileID)
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
