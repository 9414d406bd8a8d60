package util

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

func TimeOperationMicroseconds(op func()) int64 {
	start := time.Now()
	op()
	return time.Since(start).Microseconds()
}

// NewWriteAPI returns an asynchronous InfluxDB writer, or a MockWriteAPI
// when host is empty.
func NewWriteAPI(host, token, organization, bucket string) api.WriteAPI {
	if host == "" {
		return &MockWriteAPI{}
	}
	return influxdb2.NewClient(host, token).WriteAPI(organization, bucket)
}
