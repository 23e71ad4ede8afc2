// defaults.go: viper default values for all configuration parameters.
package conf

import (
	"github.com/spf13/viper"
)

func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "FieldQuest-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/")

	viper.SetDefault("identify.thresholds.species", 0.85)
	viper.SetDefault("identify.thresholds.bird", 0.75)
	viper.SetDefault("identify.thresholds.macro", 0.70)
	viper.SetDefault("identify.retry.maxattempts", 3)
	viper.SetDefault("identify.retry.delayms", 1000)
	viper.SetDefault("identify.retry.maxdelayms", 10000)
	viper.SetDefault("identify.retry.backoff", "exponential")
	viper.SetDefault("identify.retry.jitter", true)
	viper.SetDefault("identify.timeoutms", 30000)

	viper.SetDefault("providers.inaturalist.enabled", true)
	viper.SetDefault("providers.inaturalist.clientid", "")
	viper.SetDefault("providers.inaturalist.endpoint", "https://api.inaturalist.org/v1/computervision/score_image")
	viper.SetDefault("providers.inaturalist.ratelimitms", 1000)
	viper.SetDefault("providers.inaturalist.cachettlmin", 60)

	viper.SetDefault("providers.birdweather.enabled", true)
	viper.SetDefault("providers.birdweather.apikey", "")
	viper.SetDefault("providers.birdweather.endpoint", "https://api.birdweather.com/v1/identify")
	viper.SetDefault("providers.birdweather.ratelimitms", 1000)

	viper.SetDefault("providers.macro.enabled", true)
	viper.SetDefault("providers.macro.apikey", "")
	viper.SetDefault("providers.macro.endpoint", "https://api.macroinvertebrate.org/v1/identify")
	viper.SetDefault("providers.macro.offlinefallback", true)
	viper.SetDefault("providers.macro.ratelimitms", 1000)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "fieldquest.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "fieldquest")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "fieldquest")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.metricsport", "9090")

	viper.SetDefault("security.reviewerrole", "educator")
	viper.SetDefault("security.reviewers", []string{})
}
