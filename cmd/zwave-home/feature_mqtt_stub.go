//go:build no_mqtt

package main

import (
	"log/slog"

	"zwave-go-home/internal/zwave"
)

type mqttFeature struct{}

func (m *mqttFeature) Restored() {}

func (m *mqttFeature) Stop() {}

func initMQTT(_ *zwave.Network, cfg *Config, logger *slog.Logger) *mqttFeature {
	if cfg.MQTT.Enabled {
		logger.Warn("MQTT enabled in config but not built in (no_mqtt tag)")
	}
	return &mqttFeature{}
}
