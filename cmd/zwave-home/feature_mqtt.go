//go:build !no_mqtt

package main

import (
	"log/slog"

	mqttbridge "zwave-go-home/internal/mqtt"

	"zwave-go-home/internal/zwave"
)

// mqttFeature is the MQTT bridge as seen by run; a disabled or failed
// bridge leaves every method a no-op.
type mqttFeature struct {
	bridge *mqttbridge.Bridge
}

// Restored republishes the nodes loaded from the store, with their stored
// wake-up intervals and any writes still pending from before the restart.
func (m *mqttFeature) Restored() {
	if m.bridge != nil {
		m.bridge.PublishNodes()
	}
}

func (m *mqttFeature) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

// initMQTT connects the bridge and subscribes it to network events before
// any node is restored or interviewed.
func initMQTT(nw *zwave.Network, cfg *Config, logger *slog.Logger) *mqttFeature {
	if !cfg.MQTT.Enabled {
		logger.Info("MQTT bridge disabled")
		return &mqttFeature{}
	}
	bridge, err := mqttbridge.NewBridge(nw, mqttbridge.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "broker", cfg.MQTT.Broker, "err", err)
		return &mqttFeature{}
	}
	bridge.Start()
	return &mqttFeature{bridge: bridge}
}
