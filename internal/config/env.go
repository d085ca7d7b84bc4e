package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// STRATA_CONTROLLER_MAX_INFLIGHT.
const EnvPrefix = "strata"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.fsync", d.Storage.Fsync)
	v.SetDefault("storage.fsync_interval", d.Storage.FsyncInterval)
	v.SetDefault("storage.trim_batch_limit", d.Storage.TrimBatchLimit)

	v.SetDefault("streams.replica_count", d.Streams.ReplicaCount)
	v.SetDefault("streams.snapshot_read", d.Streams.SnapshotRead)
	v.SetDefault("streams.epoch", d.Streams.Epoch)
	v.SetDefault("streams.default_tags", map[string]string{})
	v.SetDefault("streams.name_regex", d.Streams.NameRegex)
	v.SetDefault("streams.fetch_max_bytes", d.Streams.FetchMaxBytes)

	v.SetDefault("controller.half_open_window", d.Controller.HalfOpenWindow)
	v.SetDefault("controller.max_inflight", d.Controller.MaxInflight)
	v.SetDefault("controller.low_watermark", d.Controller.LowWatermark)
	v.SetDefault("controller.throttle_time", d.Controller.ThrottleTime)
	v.SetDefault("controller.health_interval", d.Controller.HealthInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
}
