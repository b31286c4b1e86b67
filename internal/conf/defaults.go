package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig defines the baked-in defaults viper falls back to for any
// key absent from the config file.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// main
	viper.SetDefault("main.name", "Foresight-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/foresight.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	// database
	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "foresight.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "foresight")
	viper.SetDefault("database.mysql.password", "secret")
	viper.SetDefault("database.mysql.database", "foresight")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")

	// training
	viper.SetDefault("training.schedule", "02:00")
	viper.SetDefault("training.lookbackdays", 30)
	viper.SetDefault("training.minsamples", 1000)
	viper.SetDefault("training.workers", 4)
	viper.SetDefault("training.entitytimeout", 10*time.Minute)
	viper.SetDefault("training.kinds", []string{
		"seasonal-regression", "additive-decomposition", "gradient-boosted",
	})
	viper.SetDefault("training.holdoutfraction", 0.2)
	viper.SetDefault("training.minimprovement", 0.0)
	viper.SetDefault("training.runonstart", false)
	viper.SetDefault("training.auditlog", "logs/training-runs.log")

	// forecast
	viper.SetDefault("forecast.enabled", true)
	viper.SetDefault("forecast.interval", 10*time.Minute)
	viper.SetDefault("forecast.horizons", []int{10, 30, 60})
	viper.SetDefault("forecast.confidence", 0.95)
	viper.SetDefault("forecast.cachettl", 30*time.Minute)
	viper.SetDefault("forecast.updater.enabled", true)
	viper.SetDefault("forecast.updater.interval", 10*time.Minute)
	viper.SetDefault("forecast.updater.tolerance", 5*time.Minute)
	viper.SetDefault("forecast.updater.batchsize", 100)
	viper.SetDefault("forecast.updater.maxbatch", 20)
	viper.SetDefault("forecast.aggregation.enabled", true)
	viper.SetDefault("forecast.aggregation.interval", time.Hour)
	viper.SetDefault("forecast.aggregation.minsamples", 3)
	viper.SetDefault("forecast.aggregation.retentiondays", 90)

	// drift
	viper.SetDefault("drift.enabled", true)
	viper.SetDefault("drift.interval", 24*time.Hour)
	viper.SetDefault("drift.currentwindow", 24*time.Hour)
	viper.SetDefault("drift.referencedays", 30)
	viper.SetDefault("drift.minsamples", 50)
	viper.SetDefault("drift.alertseverity", "high")

	// mqtt
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "foresight")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	// notification
	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.minseverity", "high")

	// telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	// webserver
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	// sentry, disabled unless explicitly opted in
	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	// export
	viper.SetDefault("export.enabled", false)
	viper.SetDefault("export.type", "local")
	viper.SetDefault("export.path", "artifacts/")
	viper.SetDefault("export.ftp.host", "")
	viper.SetDefault("export.ftp.port", 21)
	viper.SetDefault("export.ftp.username", "")
	viper.SetDefault("export.ftp.password", "")
	viper.SetDefault("export.sftp.host", "")
	viper.SetDefault("export.sftp.port", 22)
	viper.SetDefault("export.sftp.username", "")
	viper.SetDefault("export.sftp.password", "")
	viper.SetDefault("export.sftp.keyfile", "")
}
