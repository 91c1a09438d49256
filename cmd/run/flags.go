package run

import (
	"github.com/spf13/cobra"

	"github.com/establishment/cerberus/cmd/util"
	daemonconfig "github.com/establishment/cerberus/pkg/daemon/config"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlags(command *cobra.Command) {
	defaultConfig := daemonconfig.DefaultConfig()
	flags := command.Flags()

	flags.Int("workers", defaultConfig.Workers, "the number of concurrent command handler executions per command family")
	util.MustBindPFlag("workers", flags.Lookup("workers"))
	util.MustBindEnv("workers", "CERBERUS_WORKERS")

	flags.Int("queue-capacity", defaultConfig.QueueCapacity, "the fixed capacity of each family's command queue; ingestion blocks when it is full")
	util.MustBindPFlag("queueCapacity", flags.Lookup("queue-capacity"))
	util.MustBindEnv("queueCapacity", "CERBERUS_QUEUE_CAPACITY", "CERBERUS_QUEUECAPACITY")

	flags.Duration("reconnect-backoff", defaultConfig.ReconnectBackoff, "the fixed interval slept before reconnecting after a transport failure")
	util.MustBindPFlag("reconnectBackoff", flags.Lookup("reconnect-backoff"))
	util.MustBindEnv("reconnectBackoff", "CERBERUS_RECONNECT_BACKOFF", "CERBERUS_RECONNECTBACKOFF")

	flags.StringSlice("public-stream-prefixes", defaultConfig.PublicStreamPrefixes, "the stream name prefixes guests may subscribe to")
	util.MustBindPFlag("publicStreamPrefixes", flags.Lookup("public-stream-prefixes"))
	util.MustBindEnv("publicStreamPrefixes", "CERBERUS_PUBLIC_STREAM_PREFIXES", "CERBERUS_PUBLICSTREAMPREFIXES")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "CERBERUS_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "CERBERUS_LOG_LEVEL")

	flags.String("transport-engine", defaultConfig.Transport.Engine, "the stream transport engine that will be used ('redis' or 'memory')")
	util.MustBindPFlag("transport.engine", flags.Lookup("transport-engine"))
	util.MustBindEnv("transport.engine", "CERBERUS_TRANSPORT_ENGINE")

	flags.String("transport-redis-addr", defaultConfig.Transport.Redis.Addr, "the host:port address of the Redis server backing the stream transport")
	util.MustBindPFlag("transport.redis.addr", flags.Lookup("transport-redis-addr"))
	util.MustBindEnv("transport.redis.addr", "CERBERUS_TRANSPORT_REDIS_ADDR")

	flags.String("transport-redis-password", defaultConfig.Transport.Redis.Password, "the password of the Redis server backing the stream transport")
	util.MustBindPFlag("transport.redis.password", flags.Lookup("transport-redis-password"))
	util.MustBindEnv("transport.redis.password", "CERBERUS_TRANSPORT_REDIS_PASSWORD")

	flags.Int("transport-redis-db", defaultConfig.Transport.Redis.DB, "the Redis logical database of the stream transport")
	util.MustBindPFlag("transport.redis.db", flags.Lookup("transport-redis-db"))
	util.MustBindEnv("transport.redis.db", "CERBERUS_TRANSPORT_REDIS_DB")

	flags.Int64("transport-message-cache-size", defaultConfig.Transport.MessageCacheSize, "the maximum number of persistent messages retained per stream")
	util.MustBindPFlag("transport.messageCacheSize", flags.Lookup("transport-message-cache-size"))
	util.MustBindEnv("transport.messageCacheSize", "CERBERUS_TRANSPORT_MESSAGE_CACHE_SIZE", "CERBERUS_TRANSPORT_MESSAGECACHESIZE")

	flags.String("datastore-engine", defaultConfig.Datastore.Engine, "the user store engine that will be used ('postgres' or 'none')")
	util.MustBindPFlag("datastore.engine", flags.Lookup("datastore-engine"))
	util.MustBindEnv("datastore.engine", "CERBERUS_DATASTORE_ENGINE")

	flags.String("datastore-uri", defaultConfig.Datastore.URI, "the connection uri to use to connect to the user store (for any engine other than 'none')")
	util.MustBindPFlag("datastore.uri", flags.Lookup("datastore-uri"))
	util.MustBindEnv("datastore.uri", "CERBERUS_DATASTORE_URI")

	flags.Duration("cache-user-ttl", defaultConfig.Cache.UserTTL, "how long a user lookup, positive or negative, stays fresh in the cache")
	util.MustBindPFlag("cache.userTTL", flags.Lookup("cache-user-ttl"))
	util.MustBindEnv("cache.userTTL", "CERBERUS_CACHE_USER_TTL", "CERBERUS_CACHE_USERTTL")

	flags.Int64("cache-user-max-size", defaultConfig.Cache.UserMaxSize, "the maximum number of user entries the cache can store before evicting old keys")
	util.MustBindPFlag("cache.userMaxSize", flags.Lookup("cache-user-max-size"))
	util.MustBindEnv("cache.userMaxSize", "CERBERUS_CACHE_USER_MAX_SIZE", "CERBERUS_CACHE_USERMAXSIZE")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "CERBERUS_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "CERBERUS_METRICS_ADDR")
}
