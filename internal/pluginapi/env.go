package pluginapi

import (
	"sync"

	"github.com/fluxionwatt/daqbridge/internal/config"
	"github.com/fluxionwatt/daqbridge/internal/logging"
	"github.com/fluxionwatt/daqbridge/internal/paths"
	mqtt "github.com/mochi-mqtt/server/v2"
	"gorm.io/gorm"
)

// HostEnv carries the shared, process-wide dependencies every instance may
// need: configuration, filesystem layout, structured logging, the audit
// database, and the embedded event bus. It is constructed once at startup
// and passed by reference to every instance's Init.
type HostEnv struct {
	Conf  *config.Config
	Paths paths.Paths
	Logs  *logging.Loggers

	DB   *gorm.DB
	MQTT *mqtt.Server

	WG *sync.WaitGroup
}
