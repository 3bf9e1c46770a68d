package main

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mqttHandler decodes gateway messages published on the subscribed topic and
// runs them through the processor. Failures are logged; MQTT has no reply path.
func mqttHandler(proc *processor) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		trace := genTraceID()
		var in MQTTMessage
		if err := json.Unmarshal(msg.Payload(), &in); err != nil {
			mqttLog.Warn("bad json", "trace", trace, "topic", msg.Topic(), "err", err)
			return
		}
		if in.QoS == 0 {
			in.QoS = int(msg.Qos())
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := proc.handle(ctx, trace, in); err != nil {
			mqttLog.Warn("message rejected", "trace", trace, "topic", msg.Topic(), "status", statusOf(err), "err", err)
		}
	}
}

func buildMQTTClient(cfg *Config, proc *processor) mqtt.Client {
	h := mqttHandler(proc)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.OnConnect = func(c mqtt.Client) {
		mqttLog.Info("connected", "broker", cfg.MQTTBrokerURL)
		if token := c.Subscribe(cfg.MQTTTopic, cfg.MQTTQoS, h); token.Wait() && token.Error() != nil {
			mqttLog.Error("subscribe failed", "topic", cfg.MQTTTopic, "err", token.Error())
		} else {
			mqttLog.Info("subscribed", "topic", cfg.MQTTTopic, "qos", cfg.MQTTQoS)
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) { mqttLog.Warn("connection lost", "err", err) }

	return mqtt.NewClient(opts)
}

// connectWithBackoff retries the initial connect, doubling the wait up to maxBackoff,
// until it succeeds or ctx is done.
func connectWithBackoff(ctx context.Context, client mqtt.Client, start, maxBackoff time.Duration) error {
	backoff := start
	for {
		token := client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		mqttLog.Warn("connect failed", "err", token.Error(), "retry_in", backoff)
		select {
		case <-time.After(backoff):
			if backoff < maxBackoff {
				backoff *= 2
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
