// Command gas-monitor reads a serial gas sensor, logs significant readings
// and serves status and controls over HTTP and MQTT.
package main

import (
	"log"

	"github.com/sweeney/gas-monitor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
