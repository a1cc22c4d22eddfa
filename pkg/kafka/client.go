// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"silo-go/internal/config"
	"silo-go/pkg/database"
	"silo-go/pkg/log"
	"silo-go/pkg/tasks"
)

// TaskProcessor defines the interface for any service that can process an enrichment task.
// This decouples the Kafka consumer from the concrete enrichment implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.AIEnrichmentTask) error
}

// maxAttempts 单个任务的最大处理次数，超过后提交 offset 放弃重试。
const maxAttempts = 5

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceEnrichmentTask 发送一个 AI 补充提取任务到 Kafka。
// 以 FileID 作为消息 key，保证同一文件的任务落在同一分区内有序。
func ProduceEnrichmentTask(task tasks.AIEnrichmentTask) error {
	if producer == nil {
		return fmt.Errorf("kafka 生产者未初始化")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(task.FileID),
			Value: taskBytes,
		},
	)
}

// backoff 计算第 attempt 次失败后的等待时间，指数退避并封顶。
func backoff(attempt int64) time.Duration {
	d := time.Second << uint(attempt)
	if d > 2*time.Minute {
		d = 2 * time.Minute
	}
	return d
}

// StartConsumer 启动一个 Kafka 消费者来处理补充提取任务。
// 处理器必须是幂等的：失败的任务通过不提交 offset 由 Kafka 重投，
// 重投前按失败次数做指数退避，失败次数记录在 Redis 中跨重启保留。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "silo-enrichment-consumer"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var task tasks.AIEnrichmentTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理补充提取任务: FileID=%s, FileName=%s", task.FileID, task.FileName)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("补充提取任务失败: FileID=%s, Error: %v", task.FileID, err)

			attemptsKey := fmt.Sprintf("enrich:attempts:%s", task.FileID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()

			if attempts >= maxAttempts {
				log.Errorf("补充提取任务多次失败(>=%d)，提交 offset 终止重试: FileID=%s", maxAttempts, task.FileID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
				continue
			}
			// 退避后不提交 offset，由 Kafka 重投
			time.Sleep(backoff(attempts))
		} else {
			log.Infof("补充提取任务处理成功: FileID=%s", task.FileID)
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("enrich:attempts:%s", task.FileID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
