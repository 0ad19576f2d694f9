package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/tmvault/pkg/configs"
)

const (
	natsDrainTimeout   = 30 * time.Second
	natsFlusherTimeout = 10 * time.Second
)

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// natsOptions 连接参数；StrictConnect 关闭时启动期连接失败会在后台重试.
func natsOptions(cfg *configs.MQConfig) []nc.Option {
	c := cfg.Common
	opts := []nc.Option{
		nc.Name(c.ClientID),
		nc.MaxReconnects(c.MaxReconnects),
		nc.ReconnectWait(time.Duration(c.ReconnectWait) * time.Second),
		nc.ReconnectJitter(c.ReconnectJitter, c.ReconnectJitter),
		nc.PingInterval(time.Duration(c.PingInterval) * time.Second),
		nc.MaxPingsOutstanding(c.MaxPingsOut),
		nc.ReconnectBufSize(c.BufferSize),
		nc.DrainTimeout(natsDrainTimeout),
		nc.FlusherTimeout(natsFlusherTimeout),
		nc.RetryOnFailedConnect(!c.StrictConnect),
	}

	switch {
	case cfg.NATS.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.NATS.JWT, cfg.NATS.NKey))
	case c.User != "":
		opts = append(opts, nc.UserInfo(c.User, c.Password))
	}

	return opts
}

func natsURL(cfg *configs.MQConfig) string {
	if len(cfg.NATS.ClusterURLs) > 0 {
		return strings.Join(cfg.NATS.ClusterURLs, ",")
	}

	return cfg.Common.URL
}

func jetStreamConfig(cfg configs.MQNATSConfig) nats.JetStreamConfig {
	if !cfg.JetStreamEnabled {
		return nats.JetStreamConfig{Disabled: true}
	}

	return nats.JetStreamConfig{
		AutoProvision: cfg.JetStreamAutoProvision,
		TrackMsgId:    cfg.JetStreamTrackMsgID,
		AckAsync:      cfg.JetStreamAckAsync,
		DurablePrefix: cfg.JetStreamDurablePrefix,
	}
}

// natsFactory 创建 NATS 发布者与订阅者，两者使用独立连接.
func natsFactory(_ context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	opts := natsOptions(cfg)
	js := jetStreamConfig(cfg.NATS)
	marshaler := &nats.JSONMarshaler{}

	logger.Info("nats transport", watermill.LogFields{
		"url":       natsURL(cfg),
		"jetstream": cfg.NATS.JetStreamEnabled,
		"balanced":  cfg.NATS.LoadBalance,
	})

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         natsURL(cfg),
		NatsOptions: opts,
		JetStream:   js,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	subCfg := nats.SubscriberConfig{
		URL:              natsURL(cfg),
		NatsOptions:      opts,
		JetStream:        js,
		Unmarshaler:      marshaler,
		SubscribersCount: max(cfg.Common.Subscribers, 1),
		AckWaitTimeout:   cfg.NATS.AckWait,
	}

	if cfg.NATS.LoadBalance {
		subCfg.QueueGroupPrefix = cfg.NATS.SubjectPrefix
	}

	sub, err := nats.NewSubscriber(subCfg, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}

	return pub, sub, nil
}
