package events

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/segmentio/kafka-go"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "afrisens.dev/settlement/internal/store"
)

const (
    DefaultTopic        = "donation.settled"
    TypeDonationSettled = "donation.settled"
    publishTimeout      = 5 * time.Second
)

// DonationSettled is the message body published once per settled Transaction.
type DonationSettled struct {
    Type              string          `json:"type"`
    TransactionID     string          `json:"transaction_id"`
    PaymentAttemptID  string          `json:"payment_attempt_id,omitempty"`
    ArtistID          string          `json:"artist_id"`
    GrossAmount       decimal.Decimal `json:"gross_amount"`
    PlatformFee       decimal.Decimal `json:"platform_fee"`
    ProviderFee       decimal.Decimal `json:"provider_fee"`
    NetAmount         decimal.Decimal `json:"net_amount"`
    Currency          string          `json:"currency"`
    ProviderReference string          `json:"provider_reference"`
    SettledAt         time.Time       `json:"settled_at"`
}

type messageWriter interface {
    WriteMessages(ctx context.Context, msgs ...kafka.Message) error
    Close() error
}

type KafkaConfig struct {
    Brokers []string
    Topic   string
}

// KafkaPublisher writes settled donations to a Kafka topic keyed by artist, so one
// artist's events stay ordered within a partition.
type KafkaPublisher struct {
    writer messageWriter
    logger *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
    if logger == nil {
        logger = zap.NewNop()
    }
    topic := cfg.Topic
    if topic == "" {
        topic = DefaultTopic
    }
    w := &kafka.Writer{
        Addr:         kafka.TCP(cfg.Brokers...),
        Topic:        topic,
        Balancer:     &kafka.Hash{},
        RequiredAcks: kafka.RequireOne,
        MaxAttempts:  3,
        BatchTimeout: 10 * time.Millisecond,
        WriteTimeout: 10 * time.Second,
        Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
            logger.Debug(fmt.Sprintf(msg, args...))
        }),
        ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
            logger.Warn(fmt.Sprintf(msg, args...))
        }),
    }
    logger.Info("kafka publisher initialized",
        zap.Strings("brokers", cfg.Brokers),
        zap.String("topic", topic),
    )
    return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishDonationSettled(ctx context.Context, tx store.Transaction) error {
    msg, err := BuildMessage(tx)
    if err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(ctx, publishTimeout)
    defer cancel()
    if err := p.writer.WriteMessages(ctx, msg); err != nil {
        return fmt.Errorf("publish donation settled: %w", err)
    }
    p.logger.Debug("donation_settled_published", zap.String("transaction_id", tx.ID))
    return nil
}

func (p *KafkaPublisher) Close() error {
    return p.writer.Close()
}

// BuildMessage encodes tx as a DonationSettled message.
func BuildMessage(tx store.Transaction) (kafka.Message, error) {
    event := DonationSettled{
        Type:              TypeDonationSettled,
        TransactionID:     tx.ID,
        ArtistID:          tx.ArtistID,
        GrossAmount:       tx.GrossAmount,
        PlatformFee:       tx.PlatformFee,
        ProviderFee:       tx.ProviderFee,
        NetAmount:         tx.NetAmount,
        Currency:          tx.Currency,
        ProviderReference: tx.ProviderReference,
        SettledAt:         tx.CreatedAt.UTC(),
    }
    if tx.PaymentAttemptID != nil {
        event.PaymentAttemptID = *tx.PaymentAttemptID
    }
    data, err := json.Marshal(event)
    if err != nil {
        return kafka.Message{}, fmt.Errorf("encode donation settled: %w", err)
    }
    return kafka.Message{
        Key:   []byte(tx.ArtistID),
        Value: data,
        Time:  tx.CreatedAt,
        Headers: []kafka.Header{
            {Key: "type", Value: []byte(TypeDonationSettled)},
        },
    }, nil
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishDonationSettled(context.Context, store.Transaction) error { return nil }

func (NopPublisher) Close() error { return nil }
