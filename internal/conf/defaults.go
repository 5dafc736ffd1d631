// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "HerbID-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/herbid.log")

	viper.SetDefault("provider.name", "plantid")
	viper.SetDefault("provider.plantid.apikey", "")
	viper.SetDefault("provider.plantid.endpoint", "https://plant.id/api/v3/identification")
	viper.SetDefault("provider.plantnet.apikey", "")
	viper.SetDefault("provider.plantnet.endpoint", "https://my-api.plantnet.org/v2/identify")
	viper.SetDefault("provider.plantnet.project", "all")

	viper.SetDefault("uses.order", []string{"spreadsheet", "catalog", "wikipedia", "provider"})

	viper.SetDefault("spreadsheet.path", "")

	viper.SetDefault("wikipedia.endpoint", "https://en.wikipedia.org/api/rest_v1/page/summary")
	viper.SetDefault("wikipedia.debug", false)

	viper.SetDefault("similarity.modelpath", "model/herb_features.tflite")
	viper.SetDefault("similarity.threshold", 0.3)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "herbs.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "herbid")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "herbid")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8000")
	viper.SetDefault("webserver.debug", false)
}
