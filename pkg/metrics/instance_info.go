// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	instanceInfoMetricName = "netops_instance_info"
	instanceInfoHelp       = "Build and host metadata of this netops instance."
)

// RegisterInstanceInfo registers the netops_instance_info info-style metric on the given registry.
// The gauge is set to 1 with the labels instance_name and version.
func RegisterInstanceInfo(registry *prometheus.Registry, instanceName, version string) error {
	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: instanceInfoMetricName,
			Help: instanceInfoHelp,
		},
		[]string{"instance_name", "version"},
	)
	info.WithLabelValues(instanceName, version).Set(1)
	return registry.Register(info)
}
